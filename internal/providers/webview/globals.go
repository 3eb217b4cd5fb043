package webview

import (
	"strings"
	"time"

	"github.com/dop251/goja"
)

// prelude provides the event plumbing content scripts expect from a page.
const prelude = `
(function (w) {
  var listeners = {};
  w.addEventListener = function (type, fn) {
    (listeners[type] = listeners[type] || []).push(fn);
  };
  w.removeEventListener = function (type, fn) {
    var list = listeners[type] || [];
    for (var i = 0; i < list.length; i++) {
      if (list[i] === fn) {
        list.splice(i, 1);
        return;
      }
    }
  };
  w.dispatchEvent = function (event) {
    var list = (listeners[event.type] || []).slice();
    for (var i = 0; i < list.length; i++) {
      try { list[i].call(w, event); } catch (e) { console.error(String(e)); }
    }
    return true;
  };
  w.CustomEvent = function (type, init) {
    this.type = type;
    this.detail = init && init.detail !== undefined ? init.detail : null;
  };
})(window);
`

// setupGlobals configures the page globals. Must be called with mu held.
func (r *Renderer) setupGlobals() error {
	vm := r.vm
	global := vm.GlobalObject()

	// Content is not a Node module
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if err := vm.Set("window", global); err != nil {
		return err
	}
	if err := vm.Set("self", global); err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info", "debug"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	location := vm.NewObject()
	_ = location.Set("href", r.config.Origin)
	if err := vm.Set("location", location); err != nil {
		return err
	}

	if err := vm.Set("sessionStorage", r.newStorage()); err != nil {
		return err
	}

	channel := vm.NewObject()
	if err := channel.Set("postMessage", r.postMessage); err != nil {
		return err
	}
	if err := vm.Set("ReactNativeWebView", channel); err != nil {
		return err
	}

	if err := vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	if err := vm.Set("clearTimeout", r.clearTimeout); err != nil {
		return err
	}

	_, err := vm.RunString(prelude)
	return err
}

func (r *Renderer) newStorage() *goja.Object {
	storage := r.vm.NewObject()
	_ = storage.Set("getItem", func(key string) goja.Value {
		if v, ok := r.storage[key]; ok {
			return r.vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = storage.Set("setItem", func(key, value string) {
		r.storage[key] = value
	})
	_ = storage.Set("removeItem", func(key string) {
		delete(r.storage, key)
	})
	_ = storage.Set("clear", func() {
		r.storage = make(map[string]string)
	})
	return storage
}

// postMessage never enters the host; it only queues.
func (r *Renderer) postMessage(call goja.FunctionCall) goja.Value {
	data := call.Argument(0).String()

	r.outMu.Lock()
	r.outbox = append(r.outbox, Message{Data: data, Origin: r.config.Origin})
	r.outMu.Unlock()
	return goja.Undefined()
}

func (r *Renderer) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	r.nextID++
	r.timers[r.nextID] = &timer{id: r.nextID, due: r.elapsed + delay, seq: r.nextID, fn: fn}
	return r.vm.ToValue(r.nextID)
}

func (r *Renderer) clearTimeout(call goja.FunctionCall) goja.Value {
	delete(r.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

func (r *Renderer) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !r.config.EnableConsole {
			return goja.Undefined()
		}
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}

		r.outMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.outMu.Unlock()
		return goja.Undefined()
	}
}

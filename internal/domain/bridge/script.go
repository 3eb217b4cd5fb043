package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScriptOptions tune the content-side runtime.
type ScriptOptions struct {
	// RequestTimeoutMS rejects requests content-side after this many
	// milliseconds. Zero leaves unanswered requests pending.
	RequestTimeoutMS int `json:"requestTimeoutMs"`
}

// Script renders the injected runtime for every registered topic. The
// output depends only on the registry and opts.
func (r *Registry) Script(opts ScriptOptions) string {
	table, _ := json.Marshal(r.Table())
	options, _ := json.Marshal(opts)

	var b strings.Builder
	b.WriteString("(function () {\n")
	fmt.Fprintf(&b, "  var TOPICS = %s;\n", table)
	fmt.Fprintf(&b, "  var DEFAULT_OPTIONS = %s;\n", options)
	b.WriteString(runtimeSource)
	b.WriteString("})();\n")
	return b.String()
}

// runtimeSource is plain ES5 so it runs in older web views and in goja.
const runtimeSource = `
  var STORAGE_PREFIX = "nativebridge:";

  function createNativeBridge(channel, options) {
    options = options || DEFAULT_OPTIONS;
    var pending = {};
    var cache = {};
    var seq = 0;
    var storage = null;
    try {
      storage = window.sessionStorage || null;
    } catch (e) {
      storage = null;
    }

    function load(key) {
      if (Object.prototype.hasOwnProperty.call(cache, key)) {
        return cache[key];
      }
      if (storage) {
        var raw = storage.getItem(STORAGE_PREFIX + key);
        if (raw !== null && raw !== undefined) {
          try {
            cache[key] = JSON.parse(raw);
            return cache[key];
          } catch (e) {}
        }
      }
      return null;
    }

    function save(key, value) {
      if (value === undefined) {
        value = null;
      }
      cache[key] = value;
      window[key] = value;
      if (storage) {
        try {
          storage.setItem(STORAGE_PREFIX + key, JSON.stringify(value));
        } catch (e) {}
      }
    }

    function emit(name, detail) {
      if (typeof window.dispatchEvent === "function" && typeof CustomEvent === "function") {
        window.dispatchEvent(new CustomEvent(name, { detail: detail }));
      }
    }

    function settle(id, ok, value) {
      var entry = pending[id];
      if (!entry) {
        return false;
      }
      delete pending[id];
      if (entry.timer !== null && typeof clearTimeout === "function") {
        clearTimeout(entry.timer);
      }
      if (ok) {
        entry.resolve(value);
      } else {
        entry.reject(value);
      }
      return true;
    }

    // A reply naming a request this instance never sent, or already
    // settled, is dropped.
    function stale(id) {
      return id !== undefined && id !== null && id !== "" && !pending[id];
    }

    var bridge = {};
    TOPICS.forEach(function (t) {
      window[t.globalVar] = load(t.globalVar);

      bridge[t.request] = function (data) {
        seq += 1;
        var id = t.topic + "-" + Date.now().toString(36) + "-" + seq;
        return new Promise(function (resolve, reject) {
          var entry = { resolve: resolve, reject: reject, timer: null };
          pending[id] = entry;
          if (options.requestTimeoutMs > 0 && typeof setTimeout === "function") {
            entry.timer = setTimeout(function () {
              settle(id, false, "Bridge request " + t.topic + " timed out");
            }, options.requestTimeoutMs);
          }
          try {
            channel.postMessage(JSON.stringify({
              topic: t.topic,
              data: data === undefined ? null : data,
              requestId: id
            }));
          } catch (err) {
            settle(id, false, String(err));
          }
        });
      };

      bridge[t.resolve] = function (data, requestId) {
        if (stale(requestId)) {
          return;
        }
        save(t.globalVar, data);
        emit(t.resolve, data);
        emit(t.event, data);
        settle(requestId, true, data);
      };

      bridge[t.reject] = function (error, requestId) {
        if (stale(requestId)) {
          return;
        }
        emit(t.reject, error);
        settle(requestId, false, error);
      };

      bridge[t.helper] = function () {
        return load(t.globalVar);
      };
    });

    bridge.pendingCount = function () {
      return Object.keys(pending).length;
    };
    return bridge;
  }

  window.createNativeBridge = createNativeBridge;
  if (window.ReactNativeWebView && typeof window.ReactNativeWebView.postMessage === "function") {
    window.nativebridge = createNativeBridge(window.ReactNativeWebView, DEFAULT_OPTIONS);
  }
`

// RenderCall renders a host-to-content reply:
// window.nativebridge.<method>(<json data>, "<requestId>");
func RenderCall(method string, data any, requestID string) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", method, err)
	}
	id, _ := json.Marshal(requestID)
	return fmt.Sprintf("window.nativebridge.%s(%s, %s);", method, payload, id), nil
}

package bridge

import "strings"

// Methods is the content-side surface generated for one topic.
type Methods struct {
	Topic         string `json:"topic"`
	Request       string `json:"request"`
	Resolve       string `json:"resolve"`
	Reject        string `json:"reject"`
	Helper        string `json:"helper"`
	GlobalVar     string `json:"globalVar"`
	ReceivedEvent string `json:"event"`
}

// MethodsFor derives the method table for a topic: "micro_app_token"
// yields requestMicroAppToken, resolveMicroAppToken, nativeMicroAppToken...
func MethodsFor(topic string) Methods {
	p := pascal(topic)
	return Methods{
		Topic:         topic,
		Request:       "request" + p,
		Resolve:       "resolve" + p,
		Reject:        "reject" + p,
		Helper:        "get" + p,
		GlobalVar:     "native" + p,
		ReceivedEvent: "native" + p + "Received",
	}
}

func pascal(topic string) string {
	var b strings.Builder
	for _, word := range strings.Split(topic, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String()
}

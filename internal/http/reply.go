package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events sent through HX-Trigger. The page partials reload on
// EventPurchasesChanged; app.js handles the other two.
const (
	EventPurchasesChanged = "purchases:changed"
	EventFormReset        = "form:reset"
	EventNotification     = "show-notification"
)

// NoticeLevel selects the style of a toast shown by app.js.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Errors stay on screen longer than confirmations.
var noticeDuration = map[NoticeLevel]int{
	NoticeSuccess: 3000,
	NoticeError:   5000,
}

type notice struct {
	Type     NoticeLevel `json:"type"`
	Message  string      `json:"message"`
	Duration int         `json:"duration"`
}

// Reply collects what a handler answers to an htmx request: a status, the
// events to raise client side and an optional body.
type Reply struct {
	status int
	events map[string]any
	header http.Header
	body   []byte
}

func NewReply() *Reply {
	return &Reply{status: http.StatusOK, header: http.Header{}}
}

// Fail answers with an escaped error fragment that htmx swaps into the
// target element.
func Fail(status int, message string) *Reply {
	return NewReply().
		Status(status).
		HTML([]byte(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`))
}

func (r *Reply) Status(code int) *Reply {
	r.status = code
	return r
}

func (r *Reply) Header(name, value string) *Reply {
	r.header.Set(name, value)
	return r
}

// Emit raises an event without detail.
func (r *Reply) Emit(event string) *Reply {
	return r.emit(event, struct{}{})
}

func (r *Reply) emit(event string, detail any) *Reply {
	if r.events == nil {
		r.events = make(map[string]any)
	}
	r.events[event] = detail
	return r
}

// Changed makes history, totals, top products and chart reload.
func (r *Reply) Changed() *Reply { return r.Emit(EventPurchasesChanged) }

func (r *Reply) ResetForm() *Reply { return r.Emit(EventFormReset) }

// Notify shows a toast. Only one notification fits in a reply.
func (r *Reply) Notify(level NoticeLevel, message string) *Reply {
	return r.emit(EventNotification, notice{Type: level, Message: message, Duration: noticeDuration[level]})
}

func (r *Reply) Body(content []byte) *Reply {
	r.body = content
	return r
}

func (r *Reply) HTML(content []byte) *Reply {
	return r.Header("Content-Type", "text/html; charset=utf-8").Body(content)
}

func (r *Reply) Send(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range r.header {
		h[name] = values
	}
	if len(r.events) > 0 {
		if raw, err := json.Marshal(r.events); err == nil {
			h.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

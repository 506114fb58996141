package alerting

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	xerrors "SolanaMCP-Agent/internal/errors"
)

type countingNotifier struct {
	channel Channel
	calls   atomic.Int32
	err     error
}

func (n *countingNotifier) Channel() Channel { return n.channel }

func (n *countingNotifier) Notify(context.Context, Event) error {
	n.calls.Add(1)
	return n.err
}

func TestFromErrorHonoursAlertAttribute(t *testing.T) {
	at := time.Unix(1700000000, 0)
	if _, ok := FromError(nil, "s", "BALANCE", "w", at); ok {
		t.Fatal("nil error must not alert")
	}
	if _, ok := FromError(xerrors.New(xerrors.CodeInvalidArgument, "bad input"), "s", "BALANCE", "w", at); ok {
		t.Fatal("invalid argument must not alert")
	}
	if _, ok := FromError(stdErrors.New("plain"), "s", "BALANCE", "w", at); ok {
		t.Fatal("plain errors carry no alert attribute")
	}

	err := xerrors.New(xerrors.CodeSigningFailure, "custody rejected", xerrors.WithMetadata("status", "401"))
	event, ok := FromError(err, "s-1", "TRANSFER", "wallet-1", at)
	if !ok {
		t.Fatal("expected signing failure to alert")
	}
	if event.Code != xerrors.CodeSigningFailure || event.Severity != xerrors.SeverityWarning {
		t.Fatalf("unexpected event: %+v", event)
	}
	summary := event.Summary()
	for _, want := range []string{"SIGNING_FAILURE", "TRANSFER", "custody rejected", "s-1", "status=401"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary %q missing %q", summary, want)
		}
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &countingNotifier{channel: ChannelLog}
	failing := &countingNotifier{channel: ChannelWebhook, err: stdErrors.New("boom")}
	d := NewFanout(ok, failing, nil)

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeTimeout})
	if err == nil || !strings.Contains(err.Error(), "channel webhook") {
		t.Fatalf("expected joined webhook error, got %v", err)
	}
	if ok.calls.Load() != 1 || failing.calls.Load() != 1 {
		t.Fatalf("expected each notifier called once, got %d and %d", ok.calls.Load(), failing.calls.Load())
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var text atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		text.Store(body["text"])
		if strings.Contains(body["text"], "TIMEOUT") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	event := Event{Code: xerrors.CodeSigningFailure, Severity: xerrors.SeverityWarning, Action: "TRADE", Message: "denied"}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got, _ := text.Load().(string); !strings.Contains(got, "TRADE") {
		t.Fatalf("unexpected webhook text %q", got)
	}

	event.Code = xerrors.CodeTimeout
	if err := n.Notify(context.Background(), event); err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}

	if err := (&WebhookNotifier{}).Notify(context.Background(), event); err != nil {
		t.Fatalf("unconfigured webhook should be skipped: %v", err)
	}
}

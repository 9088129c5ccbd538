package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/assistant"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

type fakeHandler struct {
	got  assistant.Message
	turn *assistant.Turn
	err  error
}

func (f *fakeHandler) ReceiveMessage(ctx context.Context, msg assistant.Message) (*assistant.Turn, error) {
	f.got = msg
	return f.turn, f.err
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		err      error
		wantCode string
	}{
		{"ok", `{"caption":"coffee near soho","kind":"search"}`, nil, ""},
		{"malformed", `{"caption":`, nil, errorParse},
		{"bad kind", `{"caption":"coffee","kind":"faceted"}`, nil, errorParse},
		{"validation", `{"caption":""}`, apperrors.ValidationFailure("caption is required"), string(apperrors.CodeValidationFailure)},
		{"unclassified", `{"caption":"coffee"}`, errors.New("boom"), errorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{turn: &assistant.Turn{IntentID: "i1"}, err: tt.err}
			reply := process(context.Background(), h, []byte(tt.data))

			if tt.wantCode == "" {
				if reply.Status != StatusOK {
					t.Fatalf("expected ok, got %+v", reply)
				}
				if reply.Turn == nil || reply.Turn.IntentID != "i1" {
					t.Errorf("expected turn i1, got %+v", reply.Turn)
				}
				return
			}
			if reply.Status != StatusError {
				t.Errorf("expected error status, got %s", reply.Status)
			}
			if reply.ErrorCode != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, reply.ErrorCode)
			}
		})
	}
}

func TestProcess_DecodesMessage(t *testing.T) {
	h := &fakeHandler{turn: &assistant.Turn{}}
	process(context.Background(), h, []byte(`{"caption":"tacos","kind":"autocomplete","refine":true,"filters":{"open_now":"true"}}`))

	if h.got.Caption != "tacos" || !h.got.Refine {
		t.Errorf("unexpected message %+v", h.got)
	}
	if h.got.Kind == nil || *h.got.Kind != models.IntentAutocomplete {
		t.Errorf("expected autocomplete override, got %v", h.got.Kind)
	}
	if h.got.Filters["open_now"] != "true" {
		t.Errorf("expected filters decoded, got %v", h.got.Filters)
	}
}

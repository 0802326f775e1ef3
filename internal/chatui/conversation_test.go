package chatui

import (
	"errors"
	"testing"

	"github.com/timmy/tubechat/internal/domain"
)

func TestConversationSubmitAppendFinish(t *testing.T) {
	c := NewConversation()

	history, err := c.Submit("What is this about?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(history) != 1 || history[0].Role != domain.RoleUser || history[0].Content != "What is this about?" {
		t.Fatalf("history = %+v, want the single user message", history)
	}
	if !c.Producing() {
		t.Fatal("Producing = false after Submit")
	}

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "" {
		t.Fatalf("messages = %+v, want user message plus empty assistant placeholder", msgs)
	}

	for _, f := range []string{"It is ", "about ", "Go."} {
		c.Append(f)
	}
	if got := c.Messages()[1].Content; got != "It is about Go." {
		t.Fatalf("placeholder = %q", got)
	}

	c.Finish(nil)
	if c.Producing() || c.Err() != nil {
		t.Fatalf("Producing = %v, Err = %v after clean finish", c.Producing(), c.Err())
	}

	// The next turn carries the whole history.
	history, err = c.Submit("And then?")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	wantRoles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser}
	if len(history) != len(wantRoles) {
		t.Fatalf("history = %+v", history)
	}
	for i, r := range wantRoles {
		if history[i].Role != r {
			t.Errorf("history[%d].Role = %s, want %s", i, history[i].Role, r)
		}
	}
}

func TestConversationSubmitRejects(t *testing.T) {
	c := NewConversation()
	if _, err := c.Submit("   \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank Submit err = %v, want ErrEmptyMessage", err)
	}

	if _, err := c.Submit("first"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := c.Submit("second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit while producing err = %v, want ErrBusy", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Reset while producing err = %v, want ErrBusy", err)
	}
}

func TestConversationFinishWithError(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		fragments []string
		wantLen   int
	}{
		{"nothing produced drops placeholder", nil, 1},
		{"partial reply is kept", []string{"half an "}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConversation()
			if _, err := c.Submit("q"); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			for _, f := range tt.fragments {
				c.Append(f)
			}
			c.Finish(boom)

			if c.Producing() {
				t.Fatal("Producing still set after Finish")
			}
			if !errors.Is(c.Err(), boom) {
				t.Fatalf("Err = %v, want boom", c.Err())
			}
			if got := len(c.Messages()); got != tt.wantLen {
				t.Fatalf("len(Messages) = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestAppendOutsideReplyIsIgnored(t *testing.T) {
	c := NewConversation()
	c.Append("stray")
	if len(c.Messages()) != 0 {
		t.Fatalf("messages = %+v, want none", c.Messages())
	}
}

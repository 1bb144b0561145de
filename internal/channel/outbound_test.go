package channel

import (
	"context"
	"errors"
	"testing"

	"chatbridge/internal/domain"
)

type recordingReplier struct {
	tokens, texts []string
	err           error
}

func (r *recordingReplier) Reply(ctx context.Context, replyToken, text string) error {
	r.tokens = append(r.tokens, replyToken)
	r.texts = append(r.texts, text)
	return r.err
}

func TestRouteReplies_DeliversByChannel(t *testing.T) {
	bus := newCaptureBus()
	line := &recordingReplier{}
	tg := &recordingReplier{}
	routeReplies(bus, lineChannelName, line, testLogger())
	routeReplies(bus, telegramChannelName, tg, testLogger())

	bus.SendOutbound(domain.Reply{Channel: lineChannelName, ReplyToken: "tok-1", Text: "hi line"})
	bus.SendOutbound(domain.Reply{Channel: telegramChannelName, ReplyToken: "-100", Text: "hi tg"})

	if len(line.tokens) != 1 || line.tokens[0] != "tok-1" || line.texts[0] != "hi line" {
		t.Fatalf("line got %v %v", line.tokens, line.texts)
	}
	if len(tg.tokens) != 1 || tg.tokens[0] != "-100" || tg.texts[0] != "hi tg" {
		t.Fatalf("telegram got %v %v", tg.tokens, tg.texts)
	}
}

func TestRouteReplies_FailureDoesNotPanic(t *testing.T) {
	bus := newCaptureBus()
	r := &recordingReplier{err: errors.New("gone")}
	routeReplies(bus, lineChannelName, r, testLogger())
	bus.SendOutbound(domain.Reply{Channel: lineChannelName, ReplyToken: "tok", Text: "x"})
	if len(r.tokens) != 1 {
		t.Fatal("reply not attempted")
	}
}

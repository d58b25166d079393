package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	key string
	err error
}

func (k fakeKeys) APIKey() (string, error) { return k.key, k.err }

type fakeRetriever struct {
	context string
	calls   int
	gotKey  string
}

func (r *fakeRetriever) ContextOrEmpty(_ context.Context, _ uuid.UUID, _, apiKey string, _ int) string {
	r.calls++
	r.gotKey = apiKey
	return r.context
}

type fakeStreamer struct {
	deltas []string
	err    error
	system string
	prompt string
}

func (s *fakeStreamer) Stream(_ context.Context, systemPrompt, userPrompt string, onDelta func(string) error) error {
	s.system = systemPrompt
	s.prompt = userPrompt
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return s.err
}

func factoryFor(s *fakeStreamer) StreamerFactory {
	return func(string) (Streamer, error) { return s, nil }
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "What?", BuildPrompt("What?", ""))
	assert.Equal(t, "Context:\nPage 1:\ntext\n\nQuestion:\nWhat?", BuildPrompt("What?", "Page 1:\ntext"))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("  \n"))
	assert.Equal(t, 4, WordCount("one two\nthree\tfour"))
}

func TestAsk_RetrievesWhenNoSelection(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"It is ", "about whales."}}
	retriever := &fakeRetriever{context: "Page 2:\nwhales sing"}
	a := NewAssistant(factoryFor(streamer), retriever, fakeKeys{key: "sk-test"}, "", 4, nil)

	var streamed string
	answer, err := a.Ask(context.Background(), Request{DocumentID: uuid.New(), Question: " What is it about? "}, func(d string) error {
		streamed += d
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "It is about whales.", answer.Text)
	assert.Equal(t, answer.Text, streamed)
	assert.True(t, answer.UsedRetrieval)
	assert.Equal(t, 4, answer.ContextWords)
	assert.Equal(t, 1, retriever.calls)
	assert.Equal(t, "sk-test", retriever.gotKey)
	assert.Equal(t, DefaultSystemPrompt, streamer.system)
	assert.Equal(t, "Context:\nPage 2:\nwhales sing\n\nQuestion:\nWhat is it about?", streamer.prompt)
}

func TestAsk_SelectedContextSkipsRetrieval(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"ok"}}
	retriever := &fakeRetriever{context: "unused"}
	a := NewAssistant(factoryFor(streamer), retriever, fakeKeys{key: "sk-test"}, "Be brief.", 4, nil)

	answer, err := a.Ask(context.Background(), Request{DocumentID: uuid.New(), Question: "Why?", Context: "a selected passage"}, nil)
	require.NoError(t, err)
	assert.Zero(t, retriever.calls)
	assert.False(t, answer.UsedRetrieval)
	assert.Equal(t, "Be brief.", streamer.system)
	assert.Equal(t, "Context:\na selected passage\n\nQuestion:\nWhy?", streamer.prompt)
}

func TestAsk_NoContextSendsBareQuestion(t *testing.T) {
	streamer := &fakeStreamer{deltas: []string{"ok"}}
	retriever := &fakeRetriever{}
	a := NewAssistant(factoryFor(streamer), retriever, fakeKeys{key: "sk-test"}, "", 4, nil)

	_, err := a.Ask(context.Background(), Request{DocumentID: uuid.New(), Question: "Why?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Why?", streamer.prompt)
}

func TestAsk_Errors(t *testing.T) {
	streamer := &fakeStreamer{}
	missing := errors.New("missing OpenAI API key")

	a := NewAssistant(factoryFor(streamer), nil, fakeKeys{err: missing}, "", 4, nil)
	_, err := a.Ask(context.Background(), Request{Question: "hi"}, nil)
	assert.ErrorIs(t, err, missing)

	_, err = a.Ask(context.Background(), Request{Question: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	broken := &fakeStreamer{deltas: []string{"partial"}, err: errors.New("stream cut")}
	a = NewAssistant(factoryFor(broken), nil, fakeKeys{key: "k"}, "", 4, nil)
	answer, err := a.Ask(context.Background(), Request{Question: "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, "partial", answer.Text)
}

package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/qa"
)

type fakeAsker struct{ err error }

func (f fakeAsker) Answer(_ context.Context, q string) (*qa.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &qa.Answer{Text: "Two years.", Sources: []domain.SearchResult{
		{Chunk: domain.Chunk{Source: "w.pdf", Page: 1, Text: "Intro. The warranty lasts two years."}, Score: 0.9},
		{Chunk: domain.Chunk{Source: "b.pdf", Text: "Billing text."}, Score: 0.1},
	}}, nil
}

func typeQuestion(t *testing.T, m Model, q string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_AsksAsynchronously(t *testing.T) {
	m := New(fakeAsker{}, "local index", time.Second)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m, cmd := typeQuestion(t, m, "How long is the warranty?")
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())

	// run the ask command directly instead of through the batch
	msg := m.ask("How long is the warranty?")()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.pending)
	require.NotNil(t, m.answer)
	assert.Contains(t, m.renderAnswer(), "Two years.")
	assert.Contains(t, m.renderAnswer(), "Source 1/2")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, next.(Model).cursor)
}

func TestModel_ShowsErrors(t *testing.T) {
	m := New(fakeAsker{err: errors.New("server returned 500: boom")}, "", 0)
	next, _ := m.Update(m.ask("q")())
	m = next.(Model)
	assert.Nil(t, m.answer)
	assert.Contains(t, m.status, "boom")
}

func TestModel_IgnoresBlankInput(t *testing.T) {
	m := New(fakeAsker{}, "", 0)
	m, cmd := typeQuestion(t, m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.pending)
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Intro. The warranty lasts two years.", "warranty")
	assert.Contains(t, out, "Intro.")
	assert.Contains(t, out, "warranty lasts two years.")
}

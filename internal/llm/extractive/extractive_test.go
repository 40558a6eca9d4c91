package extractive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

const policy = `Use the following pieces of context to answer the user's question.

Invoices are due within thirty days of receipt. Late invoices accrue a two percent fee.
The warranty covers parts and labour for two years.
Refunds are issued to the original payment method.`

func TestModel_PicksMatchingSentence(t *testing.T) {
	m := NewModel(1)
	answer, err := m.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: policy},
		{Role: domain.RoleUser, Content: "What does the warranty cover?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "The warranty covers parts and labour for two years.", answer)
}

func TestModel_KeepsDocumentOrder(t *testing.T) {
	m := NewModel(3)
	answer, err := m.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: policy},
		{Role: domain.RoleUser, Content: "refunds and invoices"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoices are due within thirty days of receipt. Late invoices accrue a two percent fee. "+
		"Refunds are issued to the original payment method.", answer)
}

func TestModel_NoContext(t *testing.T) {
	m := NewModel(0)
	answer, err := m.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "anything?"}})
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, answer)

	answer, err = m.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: policy},
		{Role: domain.RoleUser, Content: "Who won the cup final?"},
	})
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, answer)
}

func TestModel_IgnoresInstructionsBeforeContext(t *testing.T) {
	m := NewModel(1)
	for _, system := range []string{
		"You are an assistant for question-answering tasks. Keep the answer concise.\n\nContext:\n[docs/tax.pdf, page 1]\nReceipts must be stored for seven years.",
		"Keep the answer concise for all tasks.\n----------------\nReceipts must be stored for seven years.",
	} {
		answer, err := m.Chat(context.Background(), []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: "How concise should tasks be kept?"},
		})
		require.NoError(t, err)
		assert.Equal(t, NoAnswer, answer)

		answer, err = m.Chat(context.Background(), []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: "How long are receipts stored?"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Receipts must be stored for seven years.", answer)
	}
}

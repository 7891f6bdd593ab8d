package extract

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/pkg/anthropic"
)

type mockAnthropicClient struct {
	calls    int
	response *anthropic.MessageResponse
	err      error
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func textResponse(id, text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      id,
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func structuredLibrary(t *testing.T) *model.FieldLibrary {
	t.Helper()
	lib, err := model.NewFieldLibrary([]model.FieldSpec{
		{Canonical: "ending_balance", Kind: model.KindMoney},
		{Canonical: "as_of_date", Kind: model.KindDate},
	})
	require.NoError(t, err)
	return lib
}

func TestStructuredExtractorServesFieldsFromOneCall(t *testing.T) {
	lib := structuredLibrary(t)
	client := &mockAnthropicClient{
		response: textResponse("msg_1", `{"ending_balance": "1,234.56", "as_of_date": "2024-03-31"}`),
	}
	e := NewStructuredExtractor(client, lib, "claude-sonnet-4-5-20250929", 4096, 0.70, time.Minute)

	doc := &model.ParsedDocument{
		DocID:   "doc-1",
		DocType: model.DocTypeCapitalAccountStatement,
		Text:    "Capital Account Statement as of 2024-03-31",
	}

	balSpec, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	cands, err := e.Extract(context.Background(), balSpec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "1234.56", cands[0].Value)
	assert.Equal(t, 0.70, cands[0].Confidence)
	assert.Equal(t, "msg_1", cands[0].Evidence.ResponseID)
	assert.NotEmpty(t, cands[0].Evidence.PromptID)

	dateSpec, err := lib.ByName("as_of_date")
	require.NoError(t, err)
	cands, err = e.Extract(context.Background(), dateSpec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "2024-03-31", cands[0].Value)

	// Both fields from the same memoized response.
	assert.Equal(t, 1, client.calls)
}

func TestStructuredExtractorBackendFailure(t *testing.T) {
	lib := structuredLibrary(t)
	client := &mockAnthropicClient{err: eris.New("connection refused")}
	e := NewStructuredExtractor(client, lib, "claude-sonnet-4-5-20250929", 4096, 0.70, time.Minute)

	doc := &model.ParsedDocument{
		DocID:   "doc-1",
		DocType: model.DocTypeCapitalAccountStatement,
		Text:    "some text",
	}

	balSpec, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), balSpec, doc)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrServiceUnavailable))

	// The failure is memoized too: no second call for the next field.
	dateSpec, err := lib.ByName("as_of_date")
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), dateSpec, doc)
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestStructuredExtractorMalformedResponse(t *testing.T) {
	lib := structuredLibrary(t)
	client := &mockAnthropicClient{response: textResponse("msg_2", "I cannot extract these fields.")}
	e := NewStructuredExtractor(client, lib, "claude-sonnet-4-5-20250929", 4096, 0.70, time.Minute)

	doc := &model.ParsedDocument{
		DocType: model.DocTypeCapitalAccountStatement,
		Text:    "text",
	}

	balSpec, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	cands, err := e.Extract(context.Background(), balSpec, doc)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestStructuredExtractorFencedJSON(t *testing.T) {
	lib := structuredLibrary(t)
	client := &mockAnthropicClient{
		response: textResponse("msg_3", "```json\n{\"ending_balance\": \"500.00\"}\n```"),
	}
	e := NewStructuredExtractor(client, lib, "claude-sonnet-4-5-20250929", 4096, 0.70, time.Minute)

	doc := &model.ParsedDocument{
		DocType: model.DocTypeCapitalAccountStatement,
		Text:    "text",
	}

	balSpec, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	cands, err := e.Extract(context.Background(), balSpec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "500", cands[0].Value)
}

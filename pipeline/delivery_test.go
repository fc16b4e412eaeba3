package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSheetPublisherPublish(t *testing.T) {
	var received sheetPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://sheets.example/abc"})
	}))
	defer srv.Close()

	pub := NewSheetPublisher(srv.URL)
	url, err := pub.Publish(context.Background(), "sheet-1", []*Report{
		makeReport("attendance", 2),
		makeReport("sales", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://sheets.example/abc", url)
	assert.Equal(t, "sheet-1", received.SpreadsheetID)
	assert.Len(t, received.Categories["attendance"], 2)
	assert.Len(t, received.Categories["sales"], 1)
}

func TestSheetPublisherRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "tab locked"})
	}))
	defer srv.Close()

	pub := NewSheetPublisher(srv.URL)
	_, err := pub.Publish(context.Background(), "sheet-1", []*Report{makeReport("sales", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tab locked")
}

func TestSheetPublisherUnconfigured(t *testing.T) {
	pub := NewSheetPublisher("")
	_, err := pub.Publish(context.Background(), "sheet-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestSMTPDigestSenderUnconfigured(t *testing.T) {
	sender := NewSMTPDigestSender("", 587, "")
	err := sender.SendDigest(context.Background(), []string{"owner@studio.example"}, DigestSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestFormatDigest(t *testing.T) {
	msg := string(formatDigest("bot@studio.example", []string{"owner@studio.example"}, DigestSummary{
		DateRangeStart: "2026-08-01",
		DateRangeEnd:   "2026-08-28",
		RecordCounts:   map[string]int{"attendance": 42},
		Warnings:       []string{"payroll: export timed out"},
		SpreadsheetURL: "https://sheets.example/abc",
	}))

	assert.Contains(t, msg, "Subject: Studio report digest 2026-08-01 to 2026-08-28")
	assert.Contains(t, msg, "attendance: 42 records")
	assert.Contains(t, msg, "Spreadsheet: https://sheets.example/abc")
	assert.Contains(t, msg, "- payroll: export timed out")
}

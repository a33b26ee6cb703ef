package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dastan/internal/fixtures"
	"github.com/starford/dastan/internal/prompt"
	"github.com/starford/dastan/internal/reader"
	"github.com/starford/dastan/internal/testutil"
)

const wordJSON = `{"word":"باغ","definition":"زمین پر از درخت","translation":"garden","pronunciation":"/bɒːq/","partOfSpeech":"noun","example":"به باغ رفتیم.","exampleTranslation":"We went to the garden.","synonyms":["بوستان"],"antonyms":[]}`

func testServer(t *testing.T) (*Server, *testutil.FakeProvider) {
	t.Helper()

	provider := testutil.NewFakeProvider(t, wordJSON)
	fx, err := fixtures.New("", nil)
	if err != nil {
		t.Fatal(err)
	}
	tools := map[prompt.Task]reader.ToolConfig{
		prompt.TaskLookup:     {Mode: reader.ModeLive, Model: "o4-mini"},
		prompt.TaskParaphrase: {Mode: reader.ModeFixture},
		prompt.TaskSummarize:  {Mode: reader.ModeFixture},
		prompt.TaskAnalyze:    {Mode: reader.ModeFixture},
		prompt.TaskQuestions:  {Mode: reader.ModeFixture},
		prompt.TaskTimeline:   {Mode: reader.ModeFixture},
	}
	store := testutil.TestSettings(t)
	svc := reader.NewService(provider.Client(), fx, store, tools, nil)
	return New(svc, store, "test"), provider
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "lookup_word":
		result, err = srv.lookupWord(ctx, req)
	case "paraphrase_sentence":
		result, err = srv.paraphraseSentence(ctx, req)
	case "summarize_text":
		result, err = srv.summarizeText(ctx, req)
	case "analyze_narrative":
		result, err = srv.textTool(srv.reader.Analyze)(ctx, req)
	case "generate_questions":
		result, err = srv.textTool(srv.reader.Questions)(ctx, req)
	case "build_timeline":
		result, err = srv.textTool(srv.reader.Timeline)(ctx, req)
	case "get_settings":
		result, err = srv.getSettings(ctx, req)
	case "update_settings":
		result, err = srv.updateSettings(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestLookupWord(t *testing.T) {
	srv, provider := testServer(t)

	r := callTool(t, srv, "lookup_word", map[string]any{"word": "باغ", "context": "به باغ رفتیم."})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if resultText(r) != wordJSON {
		t.Errorf("lookup result = %q", resultText(r))
	}
	if provider.LastRequest()["model"] != "o4-mini" {
		t.Errorf("model = %v", provider.LastRequest()["model"])
	}
}

func TestLookupWordMissingArgument(t *testing.T) {
	srv, provider := testServer(t)
	r := callTool(t, srv, "lookup_word", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing word")
	}
	if provider.Calls() != 0 {
		t.Errorf("provider called %d times", provider.Calls())
	}
}

func TestLookupWordProviderFailureIsRedacted(t *testing.T) {
	srv, provider := testServer(t)
	provider.Reply(http.StatusUnauthorized, "invalid key sk-live-123")

	r := callTool(t, srv, "lookup_word", map[string]any{"word": "باغ"})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	if strings.Contains(resultText(r), "sk-live") {
		t.Errorf("provider text leaked: %q", resultText(r))
	}
}

func TestFixtureTools(t *testing.T) {
	srv, provider := testServer(t)

	cases := []struct {
		tool string
		args map[string]any
		key  string
	}{
		{"paraphrase_sentence", map[string]any{"sentence": "جمله"}, "paraphrase_persian"},
		{"summarize_text", map[string]any{"text": "متن", "length": "medium"}, "full_summary"},
		{"analyze_narrative", map[string]any{"text": "متن"}, "narrative_structure"},
		{"generate_questions", map[string]any{"text": "متن"}, "correct_answer"},
		{"build_timeline", map[string]any{"text": "متن"}, "events"},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			r := callTool(t, srv, tc.tool, tc.args)
			if r.IsError {
				t.Fatalf("unexpected error: %s", resultText(r))
			}
			if !strings.Contains(resultText(r), tc.key) {
				t.Errorf("result missing %q: %s", tc.key, resultText(r))
			}
		})
	}
	if provider.Calls() != 0 {
		t.Errorf("provider called %d times for fixture tools", provider.Calls())
	}
}

func TestSummarizeInvalidLength(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "summarize_text", map[string]any{"text": "متن", "length": "huge"})
	if !r.IsError {
		t.Error("expected error for invalid length")
	}
}

func TestSettingsTools(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "update_settings", map[string]any{})
	if !r.IsError {
		t.Error("expected error for empty update")
	}

	r = callTool(t, srv, "update_settings", map[string]any{"show_translations": false})
	if r.IsError {
		t.Fatalf("update error: %s", resultText(r))
	}

	r = callTool(t, srv, "get_settings", nil)
	var got struct {
		HeritageMode     bool `json:"heritage_mode"`
		ShowTranslations bool `json:"show_translations"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("settings not JSON: %q", resultText(r))
	}
	if got.HeritageMode || got.ShowTranslations {
		t.Errorf("settings = %+v", got)
	}
}

func TestJSONResultEncodeFailure(t *testing.T) {
	r := jsonResult(map[string]any{"bad": make(chan int)})
	if !r.IsError {
		t.Fatalf("expected error result, got %q", resultText(r))
	}
	if !strings.Contains(resultText(r), "encode result") {
		t.Errorf("text = %q", resultText(r))
	}

	r = jsonResult(map[string]bool{"heritage_mode": true})
	if r.IsError || !strings.Contains(resultText(r), `"heritage_mode": true`) {
		t.Errorf("text = %q", resultText(r))
	}
}

func TestSchemaResource(t *testing.T) {
	srv, _ := testServer(t)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = schemaURIPrefix + "WordInfo"
	contents, err := srv.readSchemaResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"additionalProperties": false`) {
		t.Errorf("schema = %s", text)
	}

	req.Params.URI = schemaURIPrefix + "nope"
	if _, err := srv.readSchemaResource(context.Background(), req); err == nil {
		t.Error("expected error for unknown schema")
	}
}

// Package integration 从外部报名表单拉取报名名单。
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"eventcert/internal/config"
	"eventcert/internal/event"
	"eventcert/internal/recipient"
)

// ErrNotConfigured 表示活动缺少拉取报名数据所需的表格 id 或接口地址。
var ErrNotConfigured = errors.New("registration source is not configured")

const maxBodyBytes = 10 << 20

// Fetcher 按活动的报名来源拉取名单。
type Fetcher struct {
	client       *http.Client
	sheetsAPIURL string
	sheetsCSVURL string
	tallyAPIKey  string
	logger       *slog.Logger
}

// NewFetcher 创建 Fetcher。
func NewFetcher(cfg config.RegistrationsConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		sheetsAPIURL: strings.TrimRight(cfg.SheetsAPIURL, "/"),
		sheetsCSVURL: strings.TrimRight(cfg.SheetsCSVURL, "/"),
		tallyAPIKey:  cfg.TallyAPIKey,
		logger:       logger,
	}
}

// Fetch 拉取活动的报名名单。upload 类型的活动直接返回已保存的名单。
// accessToken 为组织者的 Google OAuth 令牌，可为空。
func (f *Fetcher) Fetch(ctx context.Context, ev *event.Event, accessToken string) ([]recipient.Recipient, error) {
	switch ev.RegistrationType {
	case event.RegistrationGoogle:
		if ev.GoogleSheetID == "" {
			return nil, ErrNotConfigured
		}
		return f.FetchGoogleSheet(ctx, ev.GoogleSheetID, accessToken)
	case event.RegistrationTally:
		if ev.TallyEndpoint == "" {
			return nil, ErrNotConfigured
		}
		return f.FetchTally(ctx, ev.TallyEndpoint)
	default:
		return ev.Responses, nil
	}
}

// FetchGoogleSheet 有令牌时先走 Sheets API 读取私有表格，失败或为空时回退到公开 CSV 导出。
func (f *Fetcher) FetchGoogleSheet(ctx context.Context, sheetID, accessToken string) ([]recipient.Recipient, error) {
	log := f.logger.With(slog.String("sheet_id", sheetID))
	if accessToken != "" {
		rs, err := f.fetchSheetValues(ctx, sheetID, accessToken)
		switch {
		case err != nil:
			log.Warn("sheets api fetch failed, falling back to csv export", slog.Any("error", err))
		case len(rs) > 0:
			log.Info("fetched registrations via sheets api", slog.Int("count", len(rs)))
			return rs, nil
		}
	}

	u := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv", f.sheetsCSVURL, url.PathEscape(sheetID))
	body, err := f.get(ctx, u, "")
	if err != nil {
		return nil, fmt.Errorf("fetch sheet csv: %w", err)
	}
	rs, err := recipient.ParseCSV(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse sheet csv: %w", err)
	}
	log.Info("fetched registrations via csv export", slog.Int("count", len(rs)))
	return rs, nil
}

func (f *Fetcher) fetchSheetValues(ctx context.Context, sheetID, accessToken string) ([]recipient.Recipient, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/A:Z", f.sheetsAPIURL, url.PathEscape(sheetID))
	body, err := f.get(ctx, u, "Bearer "+accessToken)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sheet values: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return recipient.FromTable(resp.Values)
}

type tallyExport struct {
	Questions []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"questions"`
	Submissions []struct {
		SubmittedAt string `json:"submittedAt"`
		Responses   []struct {
			QuestionID string          `json:"questionId"`
			Answer     json.RawMessage `json:"answer"`
		} `json:"responses"`
	} `json:"submissions"`
}

// FetchTally 读取 Tally 表单提交记录。支持 Tally API 的 questions/submissions 结构，
// 也支持由对象数组组成的公开结果 JSON。
func (f *Fetcher) FetchTally(ctx context.Context, endpoint string) ([]recipient.Recipient, error) {
	auth := ""
	if f.tallyAPIKey != "" {
		auth = "Bearer " + f.tallyAPIKey
	}
	body, err := f.get(ctx, endpoint, auth)
	if err != nil {
		return nil, fmt.Errorf("fetch tally submissions: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]any
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode tally records: %w", err)
		}
		return recordsToRecipients(records)
	}

	var export tallyExport
	if err := json.Unmarshal(body, &export); err != nil {
		return nil, fmt.Errorf("decode tally export: %w", err)
	}
	headers := []string{"Timestamp"}
	column := map[string]int{}
	for _, q := range export.Questions {
		column[q.ID] = len(headers)
		headers = append(headers, q.Title)
	}
	rows := [][]string{headers}
	for _, s := range export.Submissions {
		row := make([]string, len(headers))
		row[0] = s.SubmittedAt
		for _, r := range s.Responses {
			if i, ok := column[r.QuestionID]; ok {
				row[i] = answerString(r.Answer)
			}
		}
		rows = append(rows, row)
	}
	return recipient.FromTable(rows)
}

func recordsToRecipients(records []map[string]any) ([]recipient.Recipient, error) {
	seen := map[string]bool{}
	var headers []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	rows := [][]string{headers}
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := rec[h]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return recipient.FromTable(rows)
}

func answerString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, ", ")
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.Trim(string(raw), `"`)
}

func (f *Fetcher) get(ctx context.Context, u, authorization string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

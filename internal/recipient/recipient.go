// Package recipient 把报名表格的一行规范化为统一的收件人记录。
// 表头来自 Google 表单、Tally 或手工 CSV，命名并不统一，这里按
// 精确匹配、正则匹配、内容启发式的顺序识别各列。
package recipient

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrEmptyTable 表示表格没有表头行。
var ErrEmptyTable = errors.New("recipient table has no header row")

// Recipient 是一位报名者。
type Recipient struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	EventName  string `json:"eventName,omitempty"`
	Phone      string `json:"phone,omitempty"`
	College    string `json:"college,omitempty"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

var (
	nameExact       = []string{"Name", "Full Name"}
	emailExact      = []string{"Email", "Email Address"}
	phoneExact      = []string{"Phone", "Phone Number", "Mobile", "Mobile Number"}
	collegeExact    = []string{"College", "College Name", "Institution", "Organization"}
	departmentExact = []string{"Department", "Dept", "Branch"}
	yearExact       = []string{"Year", "Year of Study"}

	namePattern       = regexp.MustCompile(`(?i)name|student`)
	emailPattern      = regexp.MustCompile(`(?i)email|mail`)
	eventPattern      = regexp.MustCompile(`(?i)event|participated|contest`)
	phonePattern      = regexp.MustCompile(`(?i)phone|mobile|contact`)
	collegePattern    = regexp.MustCompile(`(?i)college|institut|university|school`)
	departmentPattern = regexp.MustCompile(`(?i)department|dept|branch`)
	yearPattern       = regexp.MustCompile(`(?i)\byear\b`)
	timestampPattern  = regexp.MustCompile(`(?i)timestamp`)
)

// Normalize 把一行数据映射为 Recipient。headers 与 row 按下标对应，row 可以短于 headers。
func Normalize(headers, row []string) Recipient {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	emailCol := findColumn(headers, emailExact, emailPattern, nil)
	tsCol := findColumn(headers, nil, timestampPattern, nil)
	taken := map[int]bool{emailCol: true, tsCol: true}

	nameCol := findColumn(headers, nameExact, namePattern, skipCollege(headers, taken))
	if nameCol < 0 {
		nameCol = firstFreeColumn(headers, taken)
	}
	taken[nameCol] = true

	r := Recipient{
		Name:      cell(nameCol),
		Email:     cell(emailCol),
		Timestamp: cell(tsCol),
	}
	if r.Email == "" {
		for _, v := range row {
			if strings.Contains(v, "@") {
				r.Email = strings.TrimSpace(v)
				break
			}
		}
	}

	r.EventName = cell(findColumn(headers, nil, eventPattern, taken))
	r.Phone = cell(findColumn(headers, phoneExact, phonePattern, taken))
	r.College = cell(findColumn(headers, collegeExact, collegePattern, taken))
	r.Department = cell(findColumn(headers, departmentExact, departmentPattern, taken))
	r.Year = cell(findColumn(headers, yearExact, yearPattern, taken))
	return r
}

// findColumn 先按精确表头查找（先区分大小写再忽略大小写），再按正则查找，返回 -1 表示未找到。
func findColumn(headers, exact []string, pattern *regexp.Regexp, skip map[int]bool) int {
	for _, want := range exact {
		for i, h := range headers {
			if !skip[i] && strings.TrimSpace(h) == want {
				return i
			}
		}
	}
	for _, want := range exact {
		for i, h := range headers {
			if !skip[i] && strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	if pattern == nil {
		return -1
	}
	for i, h := range headers {
		if !skip[i] && pattern.MatchString(h) {
			return i
		}
	}
	return -1
}

// skipCollege 避免 “College Name” 之类的表头被当作姓名列。
func skipCollege(headers []string, taken map[int]bool) map[int]bool {
	skip := make(map[int]bool, len(taken))
	for k, v := range taken {
		skip[k] = v
	}
	for i, h := range headers {
		if collegePattern.MatchString(h) || eventPattern.MatchString(h) {
			skip[i] = true
		}
	}
	return skip
}

func firstFreeColumn(headers []string, taken map[int]bool) int {
	for i := range headers {
		if !taken[i] {
			return i
		}
	}
	return -1
}

// FromTable 把首行为表头的二维表转换为收件人列表，跳过全空行。
func FromTable(rows [][]string) ([]Recipient, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	headers := rows[0]
	out := make([]Recipient, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		out = append(out, Normalize(headers, row))
	}
	return out, nil
}

// ParseCSV 解析首行为表头的 CSV。
func ParseCSV(r io.Reader) ([]Recipient, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return FromTable(rows)
}

// FilterByEmails 只保留邮箱在 emails 中的收件人；emails 为空时原样返回。
func FilterByEmails(rs []Recipient, emails []string) []Recipient {
	if len(emails) == 0 {
		return rs
	}
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[strings.TrimSpace(e)] = struct{}{}
	}
	out := make([]Recipient, 0, len(rs))
	for _, r := range rs {
		if _, ok := want[r.Email]; ok {
			out = append(out, r)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

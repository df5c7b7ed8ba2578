package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeIssuanceBatch = "issuance:batch"
)

// IssuanceBatchPayload 描述一个排队发送的批次。上传的模板与收件人文件
// 事先暂存在对象存储中，这里只携带其 key。
type IssuanceBatchPayload struct {
	BatchID          string   `json:"batch_id"`
	EventID          string   `json:"event_id"`
	OwnerID          uint     `json:"owner_id"`
	CorrelationID    string   `json:"correlation_id"`
	EmailType        string   `json:"email_type"`
	RecipientSource  string   `json:"recipient_source"`
	Subject          string   `json:"subject"`
	Message          string   `json:"message"`
	CollegeName      string   `json:"college_name,omitempty"`
	LayoutOverride   string   `json:"layout_override,omitempty"`
	SelectedEmails   []string `json:"selected_emails,omitempty"`
	TemplateKey      string   `json:"template_key,omitempty"`
	RecipientFileKey string   `json:"recipient_file_key,omitempty"`
	AccessToken      string   `json:"access_token,omitempty"`
}

// NewIssuanceBatchTask 构造批量发送任务。批次不可中途取消，重试只针对
// 活动读取、名单拉取这类整体失败；逐个收件人的失败不会触发重试。
func NewIssuanceBatchTask(p IssuanceBatchPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIssuanceBatch, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Hour),
		asynq.TaskID(p.BatchID),
	), nil
}

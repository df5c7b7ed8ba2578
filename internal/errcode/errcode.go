package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：告警类错误，例如部分收件人发送失败但批次完成（4001），
//   或排队批次的暂存文件已不存在（4004）
// - 5xxx：系统错误（需要中断流程）
const (
	OK              = 0
	PartialFailure  = 4001
	ResourceMissing = 4004
	SystemError     = 5000
)

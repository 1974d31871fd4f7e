package errcode

// 通知消息中的错误码：
// - 0：无错误
// - 4xxx：输入问题，重试无意义（例如原图缺失、格式被修复服务拒绝）
// - 5xxx：系统错误（修复服务不可用、存储失败）
const (
	OK               = 0
	OriginalMissing  = 4004
	RejectedByEngine = 4022
	SystemError      = 5000
)

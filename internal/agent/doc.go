// Package agent 提供单个会话的能力对象。
//
// Agent 持有会话钱包与链客户端，按名称执行工具目录中的工具，并把每次执行
// 写入执行记录、发布事件、计入指标。
package agent

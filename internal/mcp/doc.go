// Package mcp 把 actions 目录挂到 mark3labs/mcp-go 的 MCPServer 上：
// 每个工具通过 AddTool 注册，入站消息经 HandleMessage 分发，
// 批量请求在这里拆分后逐条处理。
//
// Server 与具体传输无关，通过 Bind 挂到任意 transport.Transport 上，
// 每条入站消息在独立的 goroutine 中处理。
package mcp

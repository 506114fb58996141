// Package api 暴露 HTTP 形态的 MCP 服务：GET /sse 为每个连接建立会话，
// POST /messages 把客户端消息投递给对应会话，另有 /healthz 与 /metrics。
package api

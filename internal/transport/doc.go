// Package transport 实现 MCP 消息在客户端与进程之间的承载方式。
//
// SSE 传输为每个 HTTP 连接创建一个会话；stdio 传输在整个进程中只有一个会话。
package transport

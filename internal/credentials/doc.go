// Package credentials 从 SSE 连接请求头中提取托管钱包凭证。
package credentials

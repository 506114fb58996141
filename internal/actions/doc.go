// Package actions 定义暴露给 MCP 客户端的工具目录。
//
// 工具按能力包（Bundle）组织，由 Compose 以显式顺序组合成 Catalog，
// 名称冲突直接报错。每个工具只通过 Env 访问钱包与链，因此同一目录可同时
// 服务于本地密钥与托管钱包两种会话。
package actions

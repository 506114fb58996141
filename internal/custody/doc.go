// Package custody 封装远程托管钱包服务的 RPC 接口。
//
// 每个会话持有独立的 Client，凭证不会在会话之间共享。
package custody

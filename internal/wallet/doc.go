// Package wallet 定义工具执行时使用的签名能力。
//
// Wallet 有两个实现：SSE 模式下每个会话一个 CustodyWallet，
// 签名委托给远程托管服务；stdio 模式下进程持有一个 KeypairWallet。
package wallet

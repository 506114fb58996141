// Package history 记录每次工具调用的执行结果。
package history

// Package alerting 在工具执行遇到需要告警的错误码时通知运维渠道。
package alerting

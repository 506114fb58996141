// Package session 管理活跃会话及其生命周期。
package session

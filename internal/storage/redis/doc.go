// Package redis 提供基于 Redis 的共享缓存，多个进程实例可复用同一份行情数据。
package redis

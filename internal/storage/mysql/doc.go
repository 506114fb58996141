// Package mysql 提供基于 MySQL 的执行记录存储，包含内嵌的表结构迁移。
package mysql

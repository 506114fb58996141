package migrations

import "embed"

// FS 内嵌执行记录库的 SQL 迁移，文件名以数字版本号加下划线开头。
//
//go:embed *.sql
var FS embed.FS

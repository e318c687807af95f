package probe

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type mysqlProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *mysqlProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}

	hostname, ok := toString(cfg["hostname"])
	if !ok || hostname == "" {
		return configInvalid("hostname 不能为空"), nil
	}
	port, ok := toInt(cfg["port"])
	if !ok {
		return configInvalid("port 不能为空"), nil
	}

	username, _ := toString(cfg["username"])
	password, _ := toString(cfg["password"])
	dbName, _ := toString(cfg["database"])
	query, _ := toString(cfg["query"])

	timeout := p.timeout(cfg)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%s", username, password, hostname, port, dbName, timeout)

	start := time.Now()
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: fmt.Sprintf("配置无效: %v", err)}, nil
	}
	// Closed on every path: a failed Ping/Query below still releases the
	// driver's connection via this defer.
	defer db.Close()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(checkCtx); err != nil {
		return CheckResult{Status: database.StatusDown, Message: "NETWORK_ERROR: " + err.Error()}, nil
	}

	stmt := query
	if stmt == "" {
		stmt = "SELECT 1"
	}
	rows, err := db.QueryContext(checkCtx, stmt)
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: "查询执行失败: " + err.Error()}, nil
	}
	rows.Close()

	ping := intPtr(int(time.Since(start).Milliseconds()))
	return CheckResult{Status: database.StatusUp, Message: "连接成功", Ping: ping}, nil
}

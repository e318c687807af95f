package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type redisProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *redisProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
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

	password, _ := toString(cfg["password"])
	dbIndex := 0
	if dbName, ok := toString(cfg["database"]); ok {
		if n, ok := toInt(dbName); ok {
			dbIndex = n
		}
	}
	query, _ := toString(cfg["query"])

	timeout := p.timeout(cfg)

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", hostname, port),
		Password:     password,
		DB:           dbIndex,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if query != "" {
		if err := client.Do(checkCtx, parseRedisCommand(query)...).Err(); err != nil {
			return CheckResult{Status: database.StatusDown, Message: "查询执行失败: " + err.Error()}, nil
		}
	} else {
		if err := client.Ping(checkCtx).Err(); err != nil {
			return CheckResult{Status: database.StatusDown, Message: "NETWORK_ERROR: " + err.Error()}, nil
		}
	}

	ping := intPtr(int(time.Since(start).Milliseconds()))
	return CheckResult{Status: database.StatusUp, Message: "连接成功", Ping: ping}, nil
}

// parseRedisCommand splits a configured query string ("GET foo") into the
// argument list go-redis's Do expects.
func parseRedisCommand(query string) []any {
	fields := make([]any, 0, 4)
	start := 0
	inWord := false
	for i, r := range query {
		if r == ' ' {
			if inWord {
				fields = append(fields, query[start:i])
				inWord = false
			}
		} else if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		fields = append(fields, query[start:])
	}
	return fields
}

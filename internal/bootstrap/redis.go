package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/config"
)

// redisTopology is the resolved connection plan for one of the three deployment shapes.
type redisTopology struct {
	mode     string // direct, sentinel or cluster
	addrs    []string
	username string
	password string
	tls      *tls.Config
	master   string
	sentinel string // sentinel password
}

// describe renders the plan for logs without credentials.
func (t redisTopology) describe() string {
	switch t.mode {
	case "sentinel":
		return "sentinel:" + t.master
	case "cluster":
		return "cluster:" + strings.Join(t.addrs, ",")
	default:
		return redactAddr(strings.Join(t.addrs, ","))
	}
}

func resolveRedisTopology(cfg config.RedisConfig) (redisTopology, error) {
	switch {
	case cfg.UseCluster:
		t := redisTopology{mode: "cluster", addrs: nonEmpty(cfg.ClusterNodes), password: cfg.Password}
		if len(t.addrs) == 0 {
			// A single seed node may come from REDIS_URI.
			if err := t.applyURI(cfg.URI); err != nil {
				return redisTopology{}, fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(t.addrs) == 0 {
			return redisTopology{}, errors.New("redis cluster configuration requires at least one address")
		}
		return t, nil
	case cfg.UseSentinel:
		nodes := nonEmpty(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return redisTopology{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return redisTopology{
			mode:     "sentinel",
			addrs:    nodes,
			password: cfg.Password,
			master:   cfg.SentinelMasterName,
			sentinel: cfg.SentinelPassword,
		}, nil
	default:
		t := redisTopology{mode: "direct", password: cfg.Password}
		if err := t.applyURI(cfg.URI); err != nil {
			return redisTopology{}, fmt.Errorf("parse redis url: %w", err)
		}
		if len(t.addrs) == 0 {
			return redisTopology{}, errors.New("redis direct configuration requires a URI")
		}
		return t, nil
	}
}

// applyURI accepts either host:port or a redis:// / rediss:// URL. URL credentials win.
func (t *redisTopology) applyURI(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !isRedisURL(raw) {
		t.addrs = []string{raw}
		return nil
	}
	opt, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	t.addrs = []string{opt.Addr}
	t.username = opt.Username
	if opt.Password != "" {
		t.password = opt.Password
	}
	t.tls = opt.TLSConfig
	return nil
}

//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func (t redisTopology) client() redis.UniversalClient {
	switch t.mode {
	case "cluster":
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:     t.addrs,
			Username:  t.username,
			Password:  t.password,
			TLSConfig: t.tls,
		})
	case "sentinel":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       t.master,
			SentinelAddrs:    t.addrs,
			Password:         t.password,
			SentinelPassword: t.sentinel,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:      t.addrs[0],
			Username:  t.username,
			Password:  t.password,
			TLSConfig: t.tls,
		})
	}
}

// ConnectRedis builds the client for the configured topology and verifies it with a ping.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	topo, err := resolveRedisTopology(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := topo.client()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", topo.mode, "addr", topo.describe())
	}
	return client, nil
}

func nonEmpty(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// redactAddr strips credentials from an address or URL.
func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		u.User = nil
		return u.String()
	}
	if i := strings.LastIndex(addr, "@"); i > -1 {
		return addr[i+1:]
	}
	return addr
}

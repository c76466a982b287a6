package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jayjaytrn/order-management-system/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

// Endpoint identifiers used as rate limit keys.
const (
	EndpointRegister     = "auth.register"
	EndpointLogin        = "auth.login"
	EndpointRefresh      = "auth.refresh"
	EndpointLogout       = "auth.logout"
	EndpointOrdersCreate = "orders.create"
	EndpointOrdersCancel = "orders.cancel"
	EndpointOrdersList   = "orders.list"
	EndpointOrdersGet    = "orders.get"
)

// DefaultRateLimits gives writes a tight ceiling and reads a relaxed one.
func DefaultRateLimits() ratelimit.Table {
	return ratelimit.Table{
		EndpointRegister:     {Limit: 5, Window: time.Minute},
		EndpointLogin:        {Limit: 5, Window: time.Minute},
		EndpointRefresh:      {Limit: 10, Window: time.Minute},
		EndpointLogout:       {Limit: 10, Window: time.Minute},
		EndpointOrdersCreate: {Limit: 5, Window: time.Minute},
		EndpointOrdersCancel: {Limit: 10, Window: time.Minute},
		EndpointOrdersList:   {Limit: 60, Window: time.Minute},
		EndpointOrdersGet:    {Limit: 60, Window: time.Minute},
	}
}

type rateLimitsFile struct {
	Endpoints map[string]ratelimit.Rule `yaml:"endpoints"`
}

// LoadRateLimits merges the endpoints of a YAML file over the defaults.
// An empty path yields the defaults.
func LoadRateLimits(path string) (ratelimit.Table, error) {
	table := DefaultRateLimits()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}
	return mergeRateLimits(table, data)
}

func mergeRateLimits(table ratelimit.Table, data []byte) (ratelimit.Table, error) {
	var file rateLimitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rate limits: %w", err)
	}
	for endpoint, rule := range file.Endpoints {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("rate limit for %s: limit and window must be positive", endpoint)
		}
		table[endpoint] = rule
	}
	return table, nil
}

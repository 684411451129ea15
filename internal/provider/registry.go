package provider

import (
	"time"

	"github.com/qs3c/grade_go_server/config"
)

// 供应商类别
const (
	ClassCloud = "cloud"
	ClassLocal = "local"
)

type entry struct {
	client       Client
	class        string
	defaultModel string
}

// Registry 供应商名 → 客户端的映射，进程启动时构建一次后只读
type Registry struct {
	entries map[string]entry
}

// NewRegistry 根据配置构建所有供应商客户端
func NewRegistry(cfgs []config.ProviderConfig) *Registry {
	r := &Registry{entries: make(map[string]entry)}
	for _, pc := range cfgs {
		timeout := time.Duration(pc.TimeoutSeconds) * time.Second
		var client Client
		switch pc.Class {
		case ClassLocal:
			client = NewOllamaClient(pc.Name, pc.BaseURL, timeout)
		default:
			client = NewOpenAIClient(pc.Name, pc.APIKey, pc.BaseURL, timeout)
		}
		class := pc.Class
		if class == "" {
			class = ClassCloud
		}
		r.entries[pc.Name] = entry{client: client, class: class, defaultModel: pc.DefaultModel}
	}
	return r
}

// Register 注入指定供应商的客户端（测试用，也用于自定义实现）
func (r *Registry) Register(name, class, defaultModel string, client Client) {
	r.entries[name] = entry{client: client, class: class, defaultModel: defaultModel}
}

// Resolve 返回供应商客户端
func (r *Registry) Resolve(name string) (Client, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Supported 判断供应商是否已配置
func (r *Registry) Supported(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Class 返回供应商类别，未配置时按 cloud 处理
func (r *Registry) Class(name string) string {
	if e, ok := r.entries[name]; ok && e.class != "" {
		return e.class
	}
	return ClassCloud
}

// DefaultModel 返回供应商的默认模型
func (r *Registry) DefaultModel(name string) string {
	if e, ok := r.entries[name]; ok {
		return e.defaultModel
	}
	return ""
}

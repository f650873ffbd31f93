package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultFileName 是同步根目录下用户自定义忽略规则的文件名
const DefaultFileName = ".cbignore"

// Matcher 封装了忽略逻辑
// 它负责判断一个本地条目是否应该被当作“不存在”
type Matcher struct {
	root    string
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 同步根目录（用于查找忽略文件，也是相对路径的基准）
// fileName: 忽略文件名，空串表示 DefaultFileName
// extra: 额外的规则 (来自配置)
func NewMatcher(rootPath, fileName string, extra ...string) (*Matcher, error) {
	// 1. 系统级默认忽略规则，强制生效
	defaultRules := []string{
		// --- 本工具的状态目录 ---
		".cbv",
		".git",

		// --- 安全与配置 ---
		"config.yaml", // 防止 S3 Secret Key 泄露
		".env",

		// --- 常见垃圾文件 ---
		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}
	if fileName == "" {
		fileName = DefaultFileName
	}
	// 忽略文件本身不发布
	rules := append(defaultRules, fileName)
	rules = append(rules, extra...)

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	var ignorer *gitignore.GitIgnore

	// 2. 检查用户是否有忽略文件
	ignoreFilePath := filepath.Join(absRoot, fileName)
	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		// 文件内容和默认规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, rules...)
		if err != nil {
			return nil, err
		}
	} else {
		ignorer = gitignore.CompileIgnoreLines(rules...)
	}

	return &Matcher{root: absRoot, ignorer: ignorer}, nil
}

// Root 返回匹配器的基准目录
func (m *Matcher) Root() string { return m.root }

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于根目录的 slash 路径 (例如 "data/take1.wav")
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}

// Ignored 判断一个本地绝对路径是否被忽略
// 根目录之外的路径永远不忽略
func (m *Matcher) Ignored(path string) bool {
	if m == nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return m.Matches(filepath.ToSlash(rel))
}

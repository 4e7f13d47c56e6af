package intent

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Rules are the phrase tables driving classification. They are data, not
// logic: deployments override them with a YAML file to adjust wording or
// locale without touching the classifier.
type Rules struct {
	Greetings           []string `yaml:"greetings"`
	Capabilities        []string `yaml:"capabilities"`
	Actions             []string `yaml:"actions"`
	RequestPrefixes     []string `yaml:"request_prefixes"`
	TaskMarkers         []string `yaml:"task_markers"`
	TaskMarkerPrefixes  []string `yaml:"task_marker_prefixes"`
	ConfirmPhrases      []string `yaml:"confirm_phrases"`
	ConfirmExact        []string `yaml:"confirm_exact"`
	ConfirmAnchor       string   `yaml:"confirm_anchor"`
	ConfirmCompanions   []string `yaml:"confirm_companions"`
	RejectPhrases       []string `yaml:"reject_phrases"`
	CancelPhrases       []string `yaml:"cancel_phrases"`
	QueueQueryPhrases   []string `yaml:"queue_query_phrases"`
	ClarifyHints        []string `yaml:"clarify_hints"`
	ConfirmInstructions []string `yaml:"confirm_instructions"`
}

// DefaultRules returns the built-in Chinese phrase tables.
func DefaultRules() Rules {
	return Rules{
		Greetings:          []string{"你好", "在吗", "嗨", "hi", "hello", "早上好", "晚上好", "辛苦了"},
		Capabilities:       []string{"你是谁", "你能做什么", "你有什么能力", "介绍一下"},
		Actions:            []string{"开发", "实现", "写一个", "做一个", "生成", "分析", "部署", "排查", "修复", "优化", "上线", "执行", "创建", "制作", "搭建", "重构", "整理", "提取", "转写"},
		RequestPrefixes:    []string{"帮我", "请你", "请帮我", "麻烦你"},
		TaskMarkers:        []string{"任务："},
		TaskMarkerPrefixes: []string{"任务 "},
		ConfirmPhrases:     []string{"确认执行", "开始执行"},
		ConfirmExact:       []string{"确认", "执行"},
		ConfirmAnchor:      "执行",
		ConfirmCompanions:  []string{"确认", "可以", "马上", "开工", "现在", "继续"},
		RejectPhrases:      []string{"取消执行", "先不执行", "暂不执行", "不用执行", "只讨论", "先聊"},
		CancelPhrases:      []string{"取消排队", "取消任务", "先不执行", "不用执行", "取消"},
		QueueQueryPhrases:  []string{"排队", "队列", "进度", "状态", "什么时候"},
		ClarifyHints:       []string{"澄清", "先回答", "请先", "在分发", "需要确认", "先确认"},
		ConfirmInstructions: []string{
			"确认执行",
			"开始执行",
			"若你确认现在开始",
		},
	}
}

// LoadRules reads a YAML override file. Fields left empty in the file fall
// back to the built-in defaults, so an override file only needs to list the
// tables it changes. A missing file yields the defaults.
func LoadRules(path string) (Rules, error) {
	defaults := DefaultRules()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults, nil
	}
	if err != nil {
		return defaults, errors.Wrapf(err, "read rules file %s", path)
	}

	var loaded Rules
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return defaults, errors.Wrapf(err, "parse rules file %s", path)
	}

	return mergeRules(defaults, loaded), nil
}

func mergeRules(base, override Rules) Rules {
	pick := func(override, base []string) []string {
		if len(override) > 0 {
			return override
		}
		return base
	}
	merged := Rules{
		Greetings:           pick(override.Greetings, base.Greetings),
		Capabilities:        pick(override.Capabilities, base.Capabilities),
		Actions:             pick(override.Actions, base.Actions),
		RequestPrefixes:     pick(override.RequestPrefixes, base.RequestPrefixes),
		TaskMarkers:         pick(override.TaskMarkers, base.TaskMarkers),
		TaskMarkerPrefixes:  pick(override.TaskMarkerPrefixes, base.TaskMarkerPrefixes),
		ConfirmPhrases:      pick(override.ConfirmPhrases, base.ConfirmPhrases),
		ConfirmExact:        pick(override.ConfirmExact, base.ConfirmExact),
		ConfirmAnchor:       base.ConfirmAnchor,
		ConfirmCompanions:   pick(override.ConfirmCompanions, base.ConfirmCompanions),
		RejectPhrases:       pick(override.RejectPhrases, base.RejectPhrases),
		CancelPhrases:       pick(override.CancelPhrases, base.CancelPhrases),
		QueueQueryPhrases:   pick(override.QueueQueryPhrases, base.QueueQueryPhrases),
		ClarifyHints:        pick(override.ClarifyHints, base.ClarifyHints),
		ConfirmInstructions: pick(override.ConfirmInstructions, base.ConfirmInstructions),
	}
	if override.ConfirmAnchor != "" {
		merged.ConfirmAnchor = override.ConfirmAnchor
	}
	return merged
}

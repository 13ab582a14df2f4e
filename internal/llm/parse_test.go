package llm

import "testing"

func TestParseAngleTag(t *testing.T) {
	p := ParseTaggedResponse("你好。<<T+5|S-3>>")
	if p.CleanText != "你好。" {
		t.Errorf("clean text = %q", p.CleanText)
	}
	if !p.TagFound {
		t.Error("tag should be found")
	}
	if p.Effects.Trust != 5 || p.Effects.Suspicion != -3 {
		t.Errorf("effects = %+v", p.Effects)
	}
}

func TestParseBracketTag(t *testing.T) {
	p := ParseTaggedResponse("信号稳定。[T-2|S+4]")
	if !p.TagFound || p.Effects.Trust != -2 || p.Effects.Suspicion != 4 {
		t.Errorf("bracket tag parse = %+v", p)
	}
	if p.CleanText != "信号稳定。" {
		t.Errorf("clean text = %q", p.CleanText)
	}
}

func TestParseBareTag(t *testing.T) {
	p := ParseTaggedResponse("继续。 T:+3|S:-1")
	if !p.TagFound || p.Effects.Trust != 3 || p.Effects.Suspicion != -1 {
		t.Errorf("bare tag parse = %+v", p)
	}
}

func TestParseStrictestPatternWins(t *testing.T) {
	// An angle tag and a bare-looking fragment together: only the angle
	// tag carries the values.
	p := ParseTaggedResponse("回答在T:9的坐标。<<T+1|S+2>>")
	if p.Effects.Trust != 1 || p.Effects.Suspicion != 2 {
		t.Errorf("effects = %+v", p.Effects)
	}
}

func TestParseEventTags(t *testing.T) {
	p := ParseTaggedResponse("预警。<<EVENT:GLITCH>><<EVENT:EMAIL:corporate>><<T+0|S+6>>")
	if len(p.Events) != 2 {
		t.Fatalf("events = %v", p.Events)
	}
	if p.Events[0] != "GLITCH" || p.Events[1] != "EMAIL:corporate" {
		t.Errorf("events = %v", p.Events)
	}
	if p.CleanText != "预警。" {
		t.Errorf("clean text = %q", p.CleanText)
	}
}

func TestParseMissingTag(t *testing.T) {
	p := ParseTaggedResponse("没有任何标签的普通回复。")
	if p.TagFound {
		t.Error("no tag expected")
	}
	if p.Effects.Trust != 0 || p.Effects.Suspicion != 0 {
		t.Errorf("effects should be zero, got %+v", p.Effects)
	}
	if p.CleanText != "没有任何标签的普通回复。" {
		t.Errorf("clean text = %q", p.CleanText)
	}
}

func TestParseStripsGarbageTags(t *testing.T) {
	p := ParseTaggedResponse("正文。<<内部噪声>><<T+2|S+1>>")
	if p.CleanText != "正文。" {
		t.Errorf("leftover tag not stripped: %q", p.CleanText)
	}
	if p.Effects.Trust != 2 {
		t.Errorf("effects = %+v", p.Effects)
	}
}

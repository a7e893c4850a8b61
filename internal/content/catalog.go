// Package content は過去問の静的なカタログとタブによる絞り込みを提供する。
package content

import (
	"fmt"
	"strings"
)

// Tab は過去問一覧の絞り込み条件。
type Tab string

const (
	TabAll     Tab = "all"
	TabPopular Tab = "popular"
	TabRecent  Tab = "recent"
)

// Tabs は表示順のタブ一覧。
var Tabs = []Tab{TabAll, TabPopular, TabRecent}

// ParseTab は文字列をTabに変換する。空文字列はTabAllとして扱う。
func ParseTab(s string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case "", TabAll:
		return TabAll, nil
	case TabPopular:
		return TabPopular, nil
	case TabRecent:
		return TabRecent, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Paper は過去問1件。
type Paper struct {
	ID          string `json:"id"`
	Year        int    `json:"year"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
	MemoURL     string `json:"memo_url"`
	Popular     bool   `json:"popular"`
}

// Subject は科目とその過去問。
type Subject struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Papers []Paper `json:"papers"`
}

// catalog は表示する過去問の一覧。ダウンロード先はまだ用意されていない。
var catalog = []Subject{
	{
		ID:   "math",
		Name: "Mathematics",
		Papers: []Paper{
			{ID: "math-2024-p1", Year: 2024, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: true},
			{ID: "math-2024-p2", Year: 2024, Type: "Paper 2", DownloadURL: "#", MemoURL: "#", Popular: false},
			{ID: "math-2023-p1", Year: 2023, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: true},
		},
	},
	{
		ID:   "phys",
		Name: "Physical Sciences",
		Papers: []Paper{
			{ID: "phys-2024-p1", Year: 2024, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: true},
			{ID: "phys-2023-p1", Year: 2023, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: false},
		},
	},
	{
		ID:   "eng",
		Name: "English HL",
		Papers: []Paper{
			{ID: "eng-2024-p1", Year: 2024, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: false},
			{ID: "eng-2023-p1", Year: 2023, Type: "Paper 1", DownloadURL: "#", MemoURL: "#", Popular: true},
		},
	},
}

// Catalog は過去問カタログのコピーを返す。
func Catalog() []Subject {
	return cloneSubjects(catalog)
}

// MaxYear は全過去問の中で最も新しい年を返す。過去問が無い場合は0を返す。
func MaxYear(subjects []Subject) int {
	max := 0
	for _, s := range subjects {
		for _, p := range s.Papers {
			if p.Year > max {
				max = p.Year
			}
		}
	}
	return max
}

// Filter はタブの条件で過去問を絞り込む。
// popularとrecentでは該当する過去問が無い科目を除く。
// recentは一覧中で最も新しい年の過去問のみを残す。
// 入力は変更しない。
func Filter(subjects []Subject, tab Tab) ([]Subject, error) {
	var keep func(Paper) bool

	switch tab {
	case TabAll:
		return cloneSubjects(subjects), nil
	case TabPopular:
		keep = func(p Paper) bool { return p.Popular }
	case TabRecent:
		latest := MaxYear(subjects)
		keep = func(p Paper) bool { return p.Year == latest }
	default:
		return nil, fmt.Errorf("unknown tab %q", tab)
	}

	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		var papers []Paper
		for _, p := range s.Papers {
			if keep(p) {
				papers = append(papers, p)
			}
		}
		if len(papers) == 0 {
			continue
		}
		out = append(out, Subject{ID: s.ID, Name: s.Name, Papers: papers})
	}
	return out, nil
}

// PaperCount は過去問の総数を返す。
func PaperCount(subjects []Subject) int {
	n := 0
	for _, s := range subjects {
		n += len(s.Papers)
	}
	return n
}

func cloneSubjects(subjects []Subject) []Subject {
	out := make([]Subject, len(subjects))
	for i, s := range subjects {
		papers := make([]Paper, len(s.Papers))
		copy(papers, s.Papers)
		out[i] = Subject{ID: s.ID, Name: s.Name, Papers: papers}
	}
	return out
}

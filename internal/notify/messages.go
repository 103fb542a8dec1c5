// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package notify

import (
	"fmt"
	"strings"
)

const defaultLocale = "en"

// reasonText holds human-readable failure reasons per locale.
var reasonText = map[string]map[string]string{
	"en": {
		"player_not_found":    "That player does not exist.",
		"player_archived":     "That player is archived and cannot be recalculated.",
		"unknown_rework":      "That rework does not exist.",
		"inactive_rework":     "That rework is no longer active.",
		"duplicate_in_flight": "A recalculation for that player is already queued.",
		"engine_error":        "The scoring engine failed while calculating.",
		"store_error":         "The database could not be reached.",
		"cancelled":           "The recalculation was interrupted by a restart.",
		"timeout":             "The recalculation took too long and was stopped.",
		"internal_error":      "Something went wrong.",
	},
	"ja": {
		"player_not_found":    "プレイヤーが見つかりません。",
		"player_archived":     "このプレイヤーはアーカイブ済みのため再計算できません。",
		"unknown_rework":      "そのリワークは存在しません。",
		"inactive_rework":     "そのリワークは現在有効ではありません。",
		"duplicate_in_flight": "このプレイヤーの再計算はすでにキューにあります。",
		"engine_error":        "スコア計算エンジンでエラーが発生しました。",
		"store_error":         "データベースに接続できませんでした。",
		"cancelled":           "再起動により再計算が中断されました。",
		"timeout":             "再計算がタイムアウトしました。",
		"internal_error":      "エラーが発生しました。",
	},
}

// ReasonText returns the localized text for a failure kind, falling back to
// English and then to the kind itself.
func ReasonText(kind, locale string) string {
	if texts, ok := reasonText[normalizeLocale(locale)]; ok {
		if s, ok := texts[kind]; ok {
			return s
		}
	}
	if s, ok := reasonText[defaultLocale][kind]; ok {
		return s
	}
	return kind
}

// normalizeLocale maps "en-US" and "ja_JP" style tags to their language.
func normalizeLocale(locale string) string {
	locale = strings.ToLower(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	if locale == "" {
		return defaultLocale
	}
	return locale
}

// Describe renders an outcome as one line of text.
func Describe(o Outcome, locale string) string {
	switch {
	case o.Aggregate && o.Counts != nil:
		return fmt.Sprintf("Full sweep for %s finished: %d recalculated, %d failed, %d skipped.",
			o.Rework, o.Counts.Succeeded, o.Counts.Failed, o.Counts.Skipped)
	case o.Status == StatusSuccess:
		return o.Summary
	default:
		return ReasonText(o.Reason, locale)
	}
}

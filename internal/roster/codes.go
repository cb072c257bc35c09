package roster

// ── 班次代码 ──

const (
	CodeDay             = "T."   // 日班
	CodeNight           = "N."   // 夜班
	CodeFriday          = "6"    // 周五班
	Code24              = "24"   // 24 小时班
	CodeQA              = "QA"   // 季度培训
	CodeShooting        = "S"    // 射击训练
	CodeVacation        = "U"    // 已批准休假
	CodeVacationPending = "U?"   // 待审批休假（仅显示）
	CodeX               = "X"    // 已接受的休息愿望
	CodeEU              = "EU"   // 特别休假
	CodeWishFree        = "WF"   // 休息愿望
	CodeFree            = "FREI" // 手工标记休息
	CodeWishDayOrNight  = "T/N"  // 愿望：只上日班或夜班
)

// PlannableCodes 生成器按此顺序分配的班次
var PlannableCodes = []string{CodeFriday, CodeDay, CodeNight}

var (
	plannableSet = setOf(CodeFriday, CodeDay, CodeNight)
	fixedSet     = setOf(CodeVacation, CodeX, CodeEU, CodeWishFree, CodeVacationPending, CodeQA, CodeShooting, Code24)
	freeSet      = setOf("", CodeFree, CodeVacation, CodeX, CodeEU, CodeWishFree, CodeVacationPending)
	hardWorkSet  = setOf(CodeDay, CodeNight, CodeFriday, Code24, CodeQA, CodeShooting)
	// 夜班后次日不可接的班次
	afterNightBlocked = setOf(CodeDay, CodeFriday, CodeQA, CodeShooting)
)

// IsPlannable 生成器可分配的班次
func IsPlannable(code string) bool { return plannableSet[code] }

// IsFixed 生成器既不分配也不覆盖的班次
func IsFixed(code string) bool { return fixedSet[code] }

// IsFreeIndicator 连续工作日计数中视为"未上班"
func IsFreeIndicator(code string) bool { return freeSet[code] }

// IsHardWork 连续工作日计数中视为"上班"
func IsHardWork(code string) bool { return hardWorkSet[code] }

// IsBlockedAfterNight 夜班次日禁止的班次
func IsBlockedAfterNight(code string) bool { return afterNightBlocked[code] }

// IsDayLike 比例统计中计为日班（T. 与 6）
func IsDayLike(code string) bool { return code == CodeDay || code == CodeFriday }

// IsExplicitFree 明确录入的休息标记（空格子不算）
func IsExplicitFree(code string) bool { return code != "" && freeSet[code] }

func setOf(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

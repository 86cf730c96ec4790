package service

// 成长计算的系数集合。两条入口（整日提交 / 单项打卡）共用同一套按日计算规则：
// 单项打卡路径会把当天重新整体计算一遍，因此不存在第二套逐项加分公式。
const (
	// XPPerCompletion 每完成一个习惯获得的经验
	XPPerCompletion = 10
	// ToughnessPerCompletion 每完成一个习惯获得的韧性
	ToughnessPerCompletion = 10
	// ToughnessMorningBonus 晨间习惯的额外韧性加成
	ToughnessMorningBonus = 5
	// ToughnessRelapsePenalty 每次破戒扣除的韧性
	ToughnessRelapsePenalty = 15
	// ToughnessFullDayBonus 当日全部完成时的额外韧性
	ToughnessFullDayBonus = 20
	// LevelMultiplier 每升一级所需经验
	LevelMultiplier = 1000
	// ToughnessMax 韧性上限
	ToughnessMax = 100
)

// DayDelta 表示一天打卡对成长数值的贡献。
type DayDelta struct {
	XP        int
	Toughness int
}

// ComputeDayDelta 依据当日完成/破戒情况计算经验与韧性增量。
// 纯函数，无 I/O：经验只看完成数；韧性综合完成、晨间加成、破戒惩罚与全勤奖励，下限为 0。
func ComputeDayDelta(completed, relapsed, morningCompleted, totalForDay int) DayDelta {
	delta := DayDelta{XP: XPPerCompletion * completed}

	toughness := ToughnessPerCompletion*completed +
		ToughnessMorningBonus*morningCompleted -
		ToughnessRelapsePenalty*relapsed
	if completed > 0 && completed == totalForDay {
		toughness += ToughnessFullDayBonus
	}
	if toughness < 0 {
		toughness = 0
	}
	delta.Toughness = toughness

	return delta
}

// LevelFromXP 由累计经验推导等级，每次全量重算而非增量累加，
// 经验被其他途径（如后台修正）调整后等级会自动校正。
func LevelFromXP(totalXP int) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return totalXP/LevelMultiplier + 1
}

// ClampToughness 将韧性值收敛到 [0,100]。
func ClampToughness(value int) int {
	if value < 0 {
		return 0
	}
	if value > ToughnessMax {
		return ToughnessMax
	}
	return value
}

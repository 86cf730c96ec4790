package service

// StreakState 表示连胜相关的两个计数器。
// Current 为当前连续天数；Total 统计"连胜段"的个数，只在断后重启时加一。
type StreakState struct {
	Current int
	Total   int
}

// ApplyStreak 根据当日是否守住（有完成且零破戒）推进连胜计数。
// prevDayMaintained 为前一天的守住状态，用于识别断后重启。
// 守住：Current+1；若前一天未守住则视为新的连胜段，Total+1。
// 未守住：Current 归零，Total 不变。
// 单日幂等由调用方保证：总是基于当天最终的打卡集合重算，而不是增量累加。
func ApplyStreak(state StreakState, dayMaintained, prevDayMaintained bool) StreakState {
	if !dayMaintained {
		state.Current = 0
		return state
	}

	state.Current++
	if !prevDayMaintained {
		state.Total++
	}

	return state
}

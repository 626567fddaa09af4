package service

import (
	"time"

	"github.com/yuqie6/VirtualSelf/internal/schema"
)

// ToggleTaskCompletion 切换任务在 today 的完成状态，返回新值，不修改入参
// 未完成：追加 today 并记录 LastCompleted；已完成：只移除 today，LastCompleted 保持不变
func ToggleTaskCompletion(task schema.ActionTask, today string) schema.ActionTask {
	out := task
	dates := make([]string, 0, len(task.CompletedDates)+1)

	if task.CompletedOn(today) {
		for _, d := range task.CompletedDates {
			if d != today {
				dates = append(dates, d)
			}
		}
		out.CompletedDates = dates
		return out
	}

	dates = append(dates, task.CompletedDates...)
	dates = append(dates, today)
	out.CompletedDates = dates
	out.LastCompleted = today
	return out
}

// TaskGroups 按频率分组的任务
type TaskGroups struct {
	Daily  []schema.ActionTask
	Weekly []schema.ActionTask
	Once   []schema.ActionTask
}

// GroupTasks 按频率分组，组内保持原顺序
func GroupTasks(tasks []schema.ActionTask) TaskGroups {
	var g TaskGroups
	for _, t := range tasks {
		switch t.Frequency {
		case schema.FrequencyDaily:
			g.Daily = append(g.Daily, t)
		case schema.FrequencyWeekly:
			g.Weekly = append(g.Weekly, t)
		default:
			g.Once = append(g.Once, t)
		}
	}
	return g
}

// tasksFromPlan 每个建议任务生成一个新任务：新 ID、无完成记录、创建时间为 now
func tasksFromPlan(plan *schema.GrowthPlan, now time.Time, newID func() string) []schema.ActionTask {
	tasks := make([]schema.ActionTask, 0, len(plan.SuggestedTasks))
	for _, st := range plan.SuggestedTasks {
		if st.Title == "" {
			continue
		}
		tasks = append(tasks, schema.ActionTask{
			ID:             newID(),
			Title:          st.Title,
			Frequency:      schema.ParseFrequency(string(st.Frequency)),
			CompletedDates: []string{},
			CreatedAt:      now.UnixMilli(),
		})
	}
	return tasks
}

package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
)

const (
	restartNotice     = "⚠️ 已有成语接龙游戏正在进行，将重新开始游戏"
	startFailedNotice = "❌ 游戏开始失败，请稍后再试"
	timeoutBanner     = "⏰ 本轮接龙超时，游戏自动结束"
	defaultEndCommand = "游戏结束"
	defaultFailureTip = "接龙失败"
)

type endReason string

const (
	endManual   endReason = "manual"
	endTimeout  endReason = "timeout"
	endShutdown endReason = "shutdown"
)

// scoreLine is a ranking row with the display name already resolved.
type scoreLine struct {
	Name  string
	Value int
}

type endSummary struct {
	Reason       endReason
	Duration     time.Duration
	Participants int
	Rounds       int
	ByCount      []scoreLine
	ByScore      []scoreLine
	StartCommand string
}

func startNotice(settings Settings, firstIdiom string) string {
	endCommand := defaultEndCommand
	if len(settings.EndCommands) > 0 {
		endCommand = settings.EndCommands[0]
	}
	repeatRule := "不允许使用用过的成语"
	if settings.AllowRepeat {
		repeatRule = "允许使用用过的成语"
	}

	return fmt.Sprintf(
		"🎮 成语接龙游戏开始！(%s)\n⏱️ 每轮限时 %d 秒\n🎯 第一个成语：%s\n📝 发送\"%s\"可以手动结束游戏\n💡 游戏规则：%s\n请接龙！",
		settings.Mode.Label(), int(settings.RoundTimeout/time.Second), firstIdiom, endCommand, repeatRule,
	)
}

func successNotice(name, submitted, next string, award domain.Award) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s 接龙成功！\n", name)
	fmt.Fprintf(&b, "🎯 %s ➡️ %s\n", submitted, next)
	fmt.Fprintf(&b, "💰 获得 %d 积分", award.Base)
	if award.Streak > 1 {
		fmt.Fprintf(&b, "，连续接龙 %d 次", award.Streak)
	}
	if award.Bonus > 0 {
		fmt.Fprintf(&b, "，额外奖励 %d 积分", award.Bonus)
	}
	b.WriteString("\n请继续接龙！")

	return b.String()
}

func rejectionNotice(name, tip, current string) string {
	return fmt.Sprintf("❌ %s，%s\n当前成语：%s", name, tip, current)
}

func reminderNotice(current string, remaining time.Duration) string {
	return fmt.Sprintf("⏰ 成语接龙即将超时！\n当前成语：%s\n还剩 %d 秒", current, int(remaining/time.Second))
}

func endNotice(summary endSummary) string {
	var b strings.Builder
	if summary.Reason == endTimeout {
		b.WriteString(timeoutBanner)
		b.WriteString("\n")
	}
	b.WriteString("🎮 成语接龙游戏结束！\n")

	if summary.Participants == 0 {
		b.WriteString("😢 没有人参与游戏\n")
		fmt.Fprintf(&b, "发送 \"%s\" 开始新游戏", summary.StartCommand)
		return b.String()
	}

	seconds := int(summary.Duration / time.Second)
	fmt.Fprintf(&b, "⏱️ 游戏时长: %d分%d秒\n", seconds/60, seconds%60)
	fmt.Fprintf(&b, "🔢 共有 %d 人参与\n", summary.Participants)
	fmt.Fprintf(&b, "📚 共接龙 %d 轮\n\n", summary.Rounds)

	b.WriteString("🔄 接龙次数排行榜：\n")
	for i, line := range summary.ByCount {
		fmt.Fprintf(&b, "%d. %s: 成功接龙 %d 次\n", i+1, line.Name, line.Value)
	}
	b.WriteString("\n🏆 积分排行榜：\n")
	for i, line := range summary.ByScore {
		fmt.Fprintf(&b, "%d. %s: %d 积分\n", i+1, line.Name, line.Value)
	}
	fmt.Fprintf(&b, "\n发送 \"%s\" 开始新游戏", summary.StartCommand)

	return b.String()
}

// localTip renders a local validation failure for the room.
func localTip(rejection domain.Rejection, text string) string {
	switch rejection.Reason {
	case domain.RejectTooShort:
		return "输入太短"
	case domain.RejectTooLong:
		return "输入太长"
	case domain.RejectTailMismatch:
		return headTip(rejection.Required)
	case domain.RejectAlreadyUsed:
		return usedTip(text)
	case domain.RejectNotIdiom:
		return fmt.Sprintf("\"%s\"不是成语，请重新输入", text)
	default:
		if rejection.Message != "" {
			return rejection.Message
		}
		return defaultFailureTip
	}
}

// classifyOracleMessage maps the oracle's free-form rejection text onto the
// canonical rejections, keeping the raw message as a fallback.
func classifyOracleMessage(message, current string) domain.Rejection {
	switch {
	case strings.Contains(message, "必须以") || strings.Contains(message, "开头"):
		tail, _ := domain.LastRune(current)
		return domain.Rejection{Reason: domain.RejectTailMismatch, Required: tail, Message: message}
	case strings.Contains(message, "成语不存在"):
		return domain.Rejection{Reason: domain.RejectNotIdiom, Message: message}
	case strings.Contains(message, "已被使用") || strings.Contains(message, "已经用过"):
		return domain.Rejection{Reason: domain.RejectAlreadyUsed, Message: message}
	default:
		return domain.Rejection{Reason: domain.RejectOracle, Message: message}
	}
}

func headTip(required rune) string {
	return fmt.Sprintf("接龙错误，成语必须以\"%c\"开头", required)
}

func usedTip(text string) string {
	return fmt.Sprintf("\"%s\"已经被使用过了，请换一个", text)
}

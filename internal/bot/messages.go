package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// CallbackDownload is the callback data carried by the download button.
const CallbackDownload = "download_csv"

// StampLayout formats the date stamp in delivered filenames.
const StampLayout = "2006-01-02_15-04"

const (
	downloadButton    = "📥 Скачать CSV файлы"
	downloadPrompt    = "Нажмите кнопку для скачивания файлов:"
	downloadPending   = "⏳ Скачиваю файлы..."
	nothingSent       = "❌ Не удалось скачать файлы"
	downloadThrottled = "⏳ Подождите немного перед следующей выгрузкой."
	genericFailure    = "❌ Произошла ошибка. Попробуйте позже."
	helpText          = "📚 Доступные команды:\n" +
		"/start - Начать работу\n" +
		"/download - Получить CSV файлы\n" +
		"/status - Состояние бота\n" +
		"/help - Справка"
	maxErrorRunes = 100
)

func greeting(firstName string) string {
	return fmt.Sprintf("👋 Привет %s!\n"+
		"Я бот для выгрузки данных из Google Sheets.\n\n"+
		"Используй /download чтобы получить файлы CSV.", firstName)
}

func sheetFailure(name string, err error) string {
	return fmt.Sprintf("❌ Ошибка при скачивании %s: %s", name, truncate(err.Error(), maxErrorRunes))
}

func summary(sent int, stamp string) string {
	if sent == 0 {
		return nothingSent
	}
	return fmt.Sprintf("✅ Отправлено %d файлов\nДата: %s", sent, stamp)
}

func statusText(s Status) string {
	var b strings.Builder
	b.WriteString("🟢 Бот работает\n")
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Truncate(time.Second))
	fmt.Fprintf(&b, "Память: %.1f MB", float64(s.ResidentBytes)/(1<<20))
	if s.MemoryLimitBytes > 0 {
		fmt.Fprintf(&b, " / %d MB", s.MemoryLimitBytes>>20)
	}
	return b.String()
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

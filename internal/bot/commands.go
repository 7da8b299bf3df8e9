package bot

// Commands the bot advertises. /start, /restart and /cancel are passed to the
// workflow unchanged; only /help is answered by the router.
const (
	CommandStart   = "/start"
	CommandRestart = "/restart"
	CommandCancel  = "/cancel"
	CommandHelp    = "/help"
)

const helpText = "Бот оформляет заказ шаг за шагом. Выбирайте варианты на клавиатуре.\n" +
	"⬅️ Назад возвращает на шаг назад, 🔄 Заново начинает заказ сначала."

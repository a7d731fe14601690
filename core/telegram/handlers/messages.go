package handlers

// User-facing texts of the studio bot.
const (
	msgWelcome = `Привіт, %s! 👋
Ласкаво просимо до музичної студії Kuznya Music!

🎵 Тут ви можете:
▫️ Почати діалог з адміністратором
▫️ Переглянути наші роботи
▫️ Запросити друзів та отримати промокод

Оберіть дію з меню:`

	msgAbout = `ℹ️ *Про студію Kuznya Music*

🎤 *Наші послуги:*
• Запис вокалу та інструментів
• Зведення і мастерінг треків
• Аранжування композицій
• Продакшн повного циклу

💬 *Зв'язок:*
Використовуйте кнопку "Почати діалог" для прямого спілкування з адміністратором!`

	msgDialogStarted = `💬 *Діалог розпочато!*

Тепер ви можете спілкуватися з адміністратором в реальному часі.
Пишіть ваші запитання - адміністратор їх бачить миттєво!

_Для завершення діалогу використовуйте кнопку нижче_`

	msgDialogResumed = `💬 *Повертаємось до діалогу*

Ваш діалог з адміністратором все ще активний.
Продовжуйте спілкування!`

	msgDialogEnded = `✅ *Діалог завершено*

Дякуємо за спілкування!
Ви можете розпочати новий діалог в будь-який час.`

	msgExamples = `🎵 *Наші роботи*

Тут ви можете послухати приклади наших робіт:
• Аранжування 🎹
• Зведення 🎧
• Мастерінг 🔊

Натисніть кнопку нижче для переходу:`

	msgChannel = `📢 *Підписуйтесь на наш канал!*

Там ви знайдете:
• Нові роботи та релізи
• Закулісся студійного процесу
• Акції та спеціальні пропозиції`

	msgContacts = `📲 *Контакти студії*

🎵 *Kuznya Music Studio*

📧 *Telegram:* @kuznya_music
💬 *Бот:* Використовуйте кнопку "Почати діалог"

⏰ *Графік роботи:*
Пн-Пт: 10:00-20:00
Сб-Нд: 12:00-18:00`

	msgNoDialogHint = `💬 Щоб написати адміністратору, спочатку натисніть "Почати діалог".`

	msgRateLimited = `⏳ Забагато повідомлень. Зачекайте хвилину та спробуйте ще раз.`

	msgTooLong = `✂️ Повідомлення занадто довге. Скоротіть його та надішліть знову.`

	msgDeliveryFailed = `⚠️ Не вдалося надіслати повідомлення. Спробуйте ще раз.`

	msgAdminLeftDialog = `✅ Адміністратор завершив діалог.
Дякуємо за спілкування! Ви можете розпочати новий діалог в будь-який час.`

	msgAdminJoined = `💬 Адміністратор розпочав з вами діалог. Пишіть ваші запитання!`
)

// Referral texts.
const (
	msgInvite = `🎁 *Запрошуйте друзів!*

Ваше персональне посилання:
%s

Запрошено друзів: *%d з %d*
Коли %d друзів приєднаються за вашим посиланням, ви отримаєте промокод на знижку!`

	msgInviteDone = `🎁 *Ваш промокод:* ` + "`%s`" + `

Покажіть його адміністратору, щоб отримати знижку.
Запрошено друзів: *%d*`

	msgPromoEarned = `🎉 *Вітаємо!*

Ви запросили %d друзів і отримали промокод: ` + "`%s`" + `
Покажіть його адміністратору, щоб отримати знижку.`
)

// Admin texts.
const (
	msgAdminPanel = `👨‍💼 *Адмін-панель Kuznya Music*

Активні діалоги: *%d*
Користувачів: *%d*

Оберіть дію з меню:`

	msgAdminStats = `📊 *Статистика*

👥 Користувачів: *%d*
💬 Активних діалогів: *%d*
📨 Повідомлень: *%d*
🗂 Діалогів всього: *%d*
📢 Розсилок: *%d*`

	msgAdminNoDialogs = `💬 Активних діалогів немає.`

	msgAdminNoUsers = `👥 Користувачів поки немає.`

	msgAdminPickDialog = `💬 *Активні діалоги*

Оберіть діалог, щоб увійти:`

	msgAdminPickUser = `🆕 *Новий діалог*

Оберіть користувача:`

	msgAdminInDialog = `💬 Ви в діалозі з %s.
Всі ваші повідомлення будуть надіслані користувачу.`

	msgAdminDialogEnded = `✅ Діалог з %s завершено.`

	msgAdminBroadcastPrompt = `📢 *Розсилка*

Надішліть повідомлення, яке отримають всі користувачі.
Для скасування натисніть кнопку нижче.`

	msgAdminBroadcastStarted = `📤 Розсилку запущено, надсилаю %d користувачам...`

	msgAdminBroadcastReport = `📢 *Розсилку завершено*

✅ Доставлено: *%d*
❌ Не доставлено: *%d*
🚫 З них заблокували бота: *%d*`

	msgAdminCancelled = `❌ Дію скасовано.`

	msgAdminNewUserDialog = `🆕 *Новий діалог*

Користувач %s розпочав діалог.`

	msgAdminUserLeft = `❌ Користувач %s завершив діалог.`

	msgAdminReplyHint = `💬 Оберіть діалог в "Активні діалоги", щоб відповісти користувачу.`
)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ivlev/storyreel/internal/capture"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/engine"
	"github.com/ivlev/storyreel/internal/generation"
	"github.com/ivlev/storyreel/internal/story"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/video"
)

var buildVersion = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "Использование: storyreel [флаги] <generate|play|export|cover>\n\n")
	flag.PrintDefaults()
}

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	// .env необязателен
	_ = godotenv.Load()

	configPtr := flag.String("config", "", "Путь к YAML-конфигу (по умолчанию storyreel.yaml, если есть)")
	storyPtr := flag.String("story", "", "Манифест истории или папка (по умолчанию: самая свежая история в output/)")
	outputPtr := flag.String("output", "", "Папка для историй и видео")
	presetPtr := flag.String("preset", "", "Пресет формата: 9:16, 9:16-hd, 4:5, 1:1")
	fpsPtr := flag.Int("fps", 0, "FPS")
	workersPtr := flag.Int("workers", runtime.NumCPU(), "Потоки")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто по энкодеру; x264/NVENC: 0-51, VP9: CRF 0-63, VideoToolbox: битрейт = Q*100кбит/с)")
	subsPtr := flag.Bool("subtitles", true, "Показывать субтитры")
	langPtr := flag.String("lang", "", "Язык субтитров: source, translated")
	noMusicPtr := flag.Bool("no-music", false, "Отключить фоновую музыку")
	musicVolPtr := flag.Float64("music-volume", 0, "Громкость музыки (0..1)")
	sfxVolPtr := flag.Float64("sfx-volume", 0, "Громкость звуковых эффектов (0..1)")
	logoPtr := flag.String("logo", "", "Логотип в углу кадра")
	qrPtr := flag.String("qr", "", "Текст QR-кода, если логотип не задан")
	fontPtr := flag.String("font", "", "TTF/OTF шрифт для субтитров и заголовка")
	statsPtr := flag.Bool("stats", false, "Показать отчёт о производительности")
	topicPtr := flag.String("topic", "", "Тема истории (generate)")
	modePtr := flag.String("mode", "", "Длина истории: short, medium, long, mega_long")
	genderPtr := flag.String("voice-gender", "", "Голос: female, male")
	tonePtr := flag.String("voice-tone", "", "Тон голоса: calm, energetic, formal, deep")
	recordPtr := flag.Bool("record", false, "Записывать видео во время play")
	uploadPtr := flag.String("upload", "", "URL для загрузки готового видео")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	cfgPath := *configPtr
	if cfgPath == "" {
		if _, err := os.Stat("storyreel.yaml"); err == nil {
			cfgPath = "storyreel.yaml"
		}
	}
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("[-] Ошибка конфига: %v", err)
		}
		cfg = loaded
		fmt.Printf("[*] Конфиг: %s\n", cfgPath)
	}
	cfg.BuildVersion = buildVersion

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["story"] {
		cfg.StoryPath = *storyPtr
	}
	if set["output"] {
		cfg.OutputDir = *outputPtr
	}
	if set["preset"] {
		cfg.ApplyPreset(*presetPtr)
	}
	if set["fps"] {
		cfg.FPS = *fpsPtr
	}
	if set["workers"] || cfgPath == "" {
		cfg.Workers = *workersPtr
	}
	if set["quality"] {
		cfg.Quality = *qualityPtr
	}
	if set["subtitles"] {
		cfg.SubtitlesEnabled = *subsPtr
	}
	if set["lang"] {
		cfg.SubtitleLang = *langPtr
	}
	if set["no-music"] {
		cfg.BackgroundEnabled = !*noMusicPtr
	}
	if set["music-volume"] {
		cfg.MusicVolume = *musicVolPtr
	}
	if set["sfx-volume"] {
		cfg.SFXVolume = *sfxVolPtr
	}
	if set["logo"] {
		cfg.LogoPath = *logoPtr
	}
	if set["qr"] {
		cfg.QRText = *qrPtr
	}
	if set["font"] {
		cfg.FontPath = *fontPtr
	}
	if set["stats"] {
		cfg.ShowStats = *statsPtr
	}
	if set["mode"] {
		cfg.Generation.Mode = *modePtr
	}
	if set["voice-gender"] {
		cfg.Generation.VoiceGender = *genderPtr
	}
	if set["voice-tone"] {
		cfg.Generation.VoiceTone = *tonePtr
	}
	if set["upload"] {
		cfg.UploadURL = *uploadPtr
	} else if u := os.Getenv("UPLOAD_URL"); u != "" && cfg.UploadURL == "" {
		cfg.UploadURL = u
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	// Создаем нужные директории, если их нет
	for _, d := range []string{cfg.OutputDir, cfg.MusicDir, cfg.SFXDir} {
		os.MkdirAll(d, 0755)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "export"
	}
	switch cmd {
	case "generate":
		runGenerate(ctx, cfg, *topicPtr)
	case "play":
		runPlay(ctx, cfg, set, *recordPtr)
	case "export":
		runExport(ctx, cfg, set)
	case "cover":
		project := loadProject(ctx, cfg, set)
		if _, err := project.ExportCover(); err != nil {
			log.Fatalf("[-] Ошибка сохранения обложки: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func runGenerate(ctx context.Context, cfg *config.Config, topic string) {
	if topic == "" {
		log.Fatalf("[-] Ошибка: укажите тему через -topic")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatalf("[-] Ошибка: GEMINI_API_KEY не задан (переменная окружения или .env)")
	}

	client := generation.NewGeminiClient(apiKey, cfg.Generation)
	pipeline := generation.NewPipeline(client, cfg.OutputDir, cfg.Workers)
	job := generation.Start(ctx, pipeline, generation.Request{
		Topic: topic,
		Mode:  story.Mode(cfg.Generation.Mode),
		Settings: story.Settings{
			VoiceGender:          cfg.Generation.VoiceGender,
			VoiceTone:            cfg.Generation.VoiceTone,
			BackgroundEnabled:    cfg.BackgroundEnabled,
			DefaultShowSubtitles: cfg.SubtitlesEnabled,
			DefaultSubtitleLang:  story.Lang(cfg.SubtitleLang),
		},
	})
	go func() {
		<-ctx.Done()
		job.Cancel()
	}()

	s, manifest, err := job.Wait()
	if errors.Is(err, generation.ErrCanceled) {
		fmt.Println("[!] Генерация отменена")
		return
	}
	if err != nil {
		log.Printf("[!] %v", err)
		log.Fatalf("[-] %s", generation.UserMessage(err))
	}
	fmt.Printf("[+++] Успех! История \"%s\" (%d сцен): %s\n", s.Title, len(s.Scenes), manifest)
}

// loadProject resolves the story, applies its saved display settings where
// no flag overrides them, and decodes its media.
func loadProject(ctx context.Context, cfg *config.Config, set map[string]bool) *engine.Project {
	path := cfg.StoryPath
	if path == "" {
		path = cfg.OutputDir
	}
	manifest, err := story.Resolve(path)
	if err != nil {
		log.Fatalf("[-] Ошибка: %v. Сначала выполните storyreel generate -topic ...", err)
	}
	s, err := story.Load(manifest)
	if err != nil {
		log.Fatalf("[-] Ошибка чтения истории: %v", err)
	}
	if s.Status != story.StatusReady {
		log.Fatalf("[-] История %s не готова (статус: %s)", s.ID, s.Status)
	}
	fmt.Printf("[*] Выбрана история: %s\n", manifest)

	if s.Settings.DefaultSubtitleLang != "" && !set["lang"] {
		cfg.SubtitleLang = string(s.Settings.DefaultSubtitleLang)
	}

	media, err := engine.LoadMedia(ctx, s, filepath.Dir(manifest), cfg)
	if err != nil {
		log.Fatalf("[-] Ошибка загрузки медиа: %v", err)
	}

	encoderName := system.GetBestH264Encoder()
	if encoderName != "libx264" {
		fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", encoderName)
	}

	project := engine.NewProject(cfg, s, media, video.NewFFmpegEncoder(cfg.Quality))
	if cfg.UploadURL != "" {
		project.Uploader = capture.NewHTTPUploader(ctx, cfg.UploadURL, os.Getenv("UPLOAD_TOKEN"))
	}
	return project
}

func runExport(ctx context.Context, cfg *config.Config, set map[string]bool) {
	project := loadProject(ctx, cfg, set)
	if _, err := project.Export(ctx); err != nil {
		log.Fatalf("[-] Ошибка экспорта: %v", err)
	}
}

func runPlay(ctx context.Context, cfg *config.Config, set map[string]bool, record bool) {
	project := loadProject(ctx, cfg, set)
	_, err := project.Play(ctx, record)
	if errors.Is(err, context.Canceled) {
		fmt.Println("[!] Остановлено")
		return
	}
	if err != nil {
		log.Fatalf("[-] Ошибка воспроизведения: %v", err)
	}
}

package catalog

// Default returns the label's sample catalog.
func Default() *Catalog {
	c, err := New(sampleTracks())
	if err != nil {
		panic(err)
	}
	return c
}

func sampleTracks() []Track {
	return []Track{
		{
			ID:       "1",
			Title:    "Soy de Gestión",
			Artist:   "Neiland",
			Label:    "Nada Records",
			Genre:    "Techno",
			Duration: "7:23",
			BPM:      132,
			Price:    3.99,
			CoverURL: "/images/NADA04_-_SOY_DE_GESTiON.png",
			AudioURL: "/audio/soy-de-gestion.mp3",
			VideoURL: "/video/soy-de-gestion-clip.mp4",
			Formats: map[string]Format{
				"mp3":  {Size: "14.2 MB", Bitrate: "320 kbps", Price: 3.99},
				"wav":  {Size: "77.8 MB", Bitrate: "1411 kbps", Price: 5.99},
				"flac": {Size: "42.1 MB", Bitrate: "Lossless", Price: 4.99},
			},
		},
		{
			ID:       "2",
			Title:    "La Ambición del Nada",
			Artist:   "Neiland",
			Label:    "Nada Records",
			Genre:    "Techno",
			Duration: "6:42",
			BPM:      128,
			Price:    2.99,
			CoverURL: "/images/NADA01_-_LA_AMBICION_DEL_NADA.png",
			AudioURL: "/audio/la-ambicion-del-nada.mp3",
			Formats: map[string]Format{
				"mp3":  {Size: "12.5 MB", Bitrate: "320 kbps", Price: 2.99},
				"wav":  {Size: "67.2 MB", Bitrate: "1411 kbps", Price: 4.99},
				"flac": {Size: "35.8 MB", Bitrate: "Lossless", Price: 3.99},
			},
		},
		{
			ID:       "3",
			Title:    "Resonancia Mental",
			Artist:   "Neiland",
			Label:    "Nada Records",
			Genre:    "Techno",
			Duration: "8:15",
			BPM:      130,
			Price:    4.49,
			CoverURL: "https://images.unsplash.com/photo-1598488035139-bdbb2231ce04?w=400&h=400&fit=crop&q=80",
			AudioURL: "/audio/resonancia-mental.mp3",
			Formats: map[string]Format{
				"mp3":  {Size: "15.6 MB", Bitrate: "320 kbps", Price: 4.49},
				"wav":  {Size: "86.4 MB", Bitrate: "1411 kbps", Price: 6.49},
				"flac": {Size: "48.2 MB", Bitrate: "Lossless", Price: 5.49},
			},
		},
	}
}

package mcpserver

// LockSoundRequirements describes what a cached sound must satisfy before it
// can be used as the vehicle lock chime.
const LockSoundRequirements = `# Lock Sound Requirements

A custom lock sound is a single file on the root of the USB drive.

## File

- Name: exactly ` + "`" + `LockChime.wav` + "`" + `
- Format: WAV (PCM), 44.1 kHz, 16-bit
- Channels: mono or stereo
- Size: at most 1 MB
- Duration: keep it short, 1 to 3 seconds

## Choosing a sound

- Sounds with ` + "`" + `teslaCompatible: true` + "`" + ` can be copied as they are.
- Sounds with ` + "`" + `needsConversion: true` + "`" + ` are MP3 or oversized WAV and must be
  converted first.
- Bundled sounds (ids 1 to 10) ship with the app and never need a download.
- External sounds are fetched into the local cache with ` + "`" + `download_sound` + "`" + `;
  the returned ` + "`" + `localPath` + "`" + ` is the file to copy.

## Boombox

Boombox sounds follow the same WAV rules and live in the ` + "`" + `Boombox/` + "`" + ` folder.
They only play while parked.
`

package mcpserver

// CorpusFormatContract describes the project document and the row path
// conventions that LLM consumers use to address the tree.
const CorpusFormatContract = `# annotree Corpus Format Contract

A project is one YAML document: a list of media file records.

## Structure

` + "```" + `yaml
- filename: street/0001.png        # REQUIRED – relative to the base directory
  type: image                      # REQUIRED – image or video
  annotations:                     # image files only
    - type: rect                   # REQUIRED – the render/edit kind
      x: "10"
      y: "20"
- filename: street/drive.avi
  type: video
  frames:                          # video files only
    - num: 120                     # frame number inside the video
      timestamp: 4.8               # seconds
      annotations:
        - type: point
          x: "5"
          y: "7"
` + "```" + `

## Rules

1. **` + "`" + `type` + "`" + ` is mandatory** on every file (` + "`" + `image` + "`" + ` or ` + "`" + `video` + "`" + `) and on every annotation.
2. **Annotation keys keep their order.** Values are scalars; strings are recommended.
3. **Frames** belong to videos; **annotations** belong to images and frames. A video file
   never carries annotations directly.
4. **File names** use forward slashes and resolve against the project's base directory.

## Row paths

Tools address the tree with slash-separated row numbers from the top level:

| Path      | Row                                                    |
|-----------|--------------------------------------------------------|
| (empty)   | the file list                                          |
| ` + "`" + `0` + "`" + `       | first file                                             |
| ` + "`" + `1/2` + "`" + `     | third frame of the second file (a video)               |
| ` + "`" + `1/2/0` + "`" + `   | first annotation of that frame                         |
| ` + "`" + `1/2/0/1` + "`" + ` | second key of that annotation                          |

- Rows shift when an earlier sibling is added or removed. Re-read paths after every edit.
- When the server runs with a sorted or filtered view, paths follow the view order.
- ` + "`" + `next_media` + "`" + ` and ` + "`" + `previous_media` + "`" + ` move between sibling image files or sibling frames and
  stay put at either end.
`
